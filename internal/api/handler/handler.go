package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/media"
	"github.com/d60-Lab/solcials-sync/internal/realtime"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/internal/service"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
	"github.com/d60-Lab/solcials-sync/pkg/response"
)

// Feed is satisfied by *realtime.Engine and *realtime.Hub.
type Feed interface {
	Subscribe() *realtime.Subscriber
	Unsubscribe(id string)
}

// ContentResolver is satisfied by *media.Resolver.
type ContentResolver interface {
	Resolve(ctx context.Context, cid string) (string, error)
}

type Deps struct {
	Posts          repository.PostRepository
	Likes          repository.LikeRepository
	PostService    service.PostService
	RelService     service.RelationshipService
	ProfileService service.ProfileService
	Resolver       ContentResolver
	Feed           Feed
}

type Handler struct {
	posts          repository.PostRepository
	likes          repository.LikeRepository
	postService    service.PostService
	relService     service.RelationshipService
	profileService service.ProfileService
	resolver       ContentResolver
	feed           Feed
}

func New(d Deps) *Handler {
	return &Handler{
		posts:          d.Posts,
		likes:          d.Likes,
		postService:    d.PostService,
		relService:     d.RelService,
		profileService: d.ProfileService,
		resolver:       d.Resolver,
		feed:           d.Feed,
	}
}

func parseAddress(c *gin.Context, param string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid address: "+param)
		return solana.PublicKey{}, false
	}
	return pk, true
}

func parseOptionalAddress(s string) (*solana.PublicKey, error) {
	if s == "" {
		return nil, nil
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

func paging(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// fail 把领域错误映射为 HTTP 状态
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, codec.ErrContentEmpty),
		errors.Is(err, codec.ErrContentTooLong),
		errors.Is(err, codec.ErrFieldTooLong),
		errors.Is(err, service.ErrFollowSelf):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, media.ErrUnavailable):
		response.NotFound(c, err.Error())
	case errors.Is(err, rpc.ErrAccountNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrNoWallet):
		response.ServiceUnavailable(c, "write endpoints need a configured wallet")
	case rpc.IsThrottled(err), errors.Is(err, rpc.ErrNoData):
		response.TooManyRequests(c, "ledger is rate limiting requests, try again shortly")
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c, err)
	}
}
