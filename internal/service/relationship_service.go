package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

var (
	ErrFollowSelf      = errors.New("cannot follow self")
	ErrProfileNotFound = errors.New("target has no profile")
	ErrPostNotFound    = errors.New("post not found")
)

// RelationshipService 关系链服务；重复关注/取关/点赞均为幂等操作，返回零签名
type RelationshipService interface {
	Follow(ctx context.Context, target solana.PublicKey) (solana.Signature, error)
	Unfollow(ctx context.Context, target solana.PublicKey) (solana.Signature, error)
	Like(ctx context.Context, post solana.PublicKey) (solana.Signature, error)
	Unlike(ctx context.Context, post solana.PublicKey) (solana.Signature, error)
	IsFollowing(ctx context.Context, follower, following solana.PublicKey) (bool, error)
	ListFollowing(ctx context.Context, user solana.PublicKey, page, pageSize int) ([]solana.PublicKey, error)
	ListFans(ctx context.Context, user solana.PublicKey, page, pageSize int) ([]solana.PublicKey, error)
}

type relationshipService struct {
	publisher  *Publisher
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	likeRepo   repository.LikeRepository
	profiles   repository.ProfileRepository
	posts      repository.PostRepository
	accounts   accounts
}

type RelationshipDeps struct {
	Follows  repository.FollowRepository
	Fans     repository.FanRepository
	Likes    repository.LikeRepository
	Profiles repository.ProfileRepository
	Posts    repository.PostRepository
}

func NewRelationshipService(publisher *Publisher, deps RelationshipDeps, deriver *pda.Deriver) RelationshipService {
	return &relationshipService{
		publisher:  publisher,
		followRepo: deps.Follows,
		fanRepo:    deps.Fans,
		likeRepo:   deps.Likes,
		profiles:   deps.Profiles,
		posts:      deps.Posts,
		accounts:   accounts{deriver: deriver},
	}
}

var relationKinds = []rpc.Kind{rpc.KindRelationships, rpc.KindProfiles}

func (s *relationshipService) Follow(ctx context.Context, target solana.PublicKey) (solana.Signature, error) {
	me, err := s.publisher.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	if me.Equals(target) {
		return solana.Signature{}, ErrFollowSelf
	}
	already, err := s.followRepo.Exists(ctx, me, target)
	if err != nil {
		return solana.Signature{}, err
	}
	if already {
		return solana.Signature{}, nil
	}
	ok, err := s.profiles.Exists(ctx, target)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("check profile: %w", err)
	}
	if !ok {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrProfileNotFound, target)
	}
	ixs, err := ensureProfile(ctx, s.profiles, s.accounts, me)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := s.accounts.follow(me, target, codec.EncodeFollowUser(), true)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.publisher.Publish(ctx, relationKinds, append(ixs, ix)...)
}

func (s *relationshipService) Unfollow(ctx context.Context, target solana.PublicKey) (solana.Signature, error) {
	me, err := s.publisher.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	following, err := s.followRepo.Exists(ctx, me, target)
	if err != nil {
		return solana.Signature{}, err
	}
	if !following {
		return solana.Signature{}, nil
	}
	ix, err := s.accounts.follow(me, target, codec.EncodeUnfollowUser(), false)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.publisher.Publish(ctx, relationKinds, ix)
}

func (s *relationshipService) like(ctx context.Context, post solana.PublicKey, like bool) (solana.Signature, error) {
	me, err := s.publisher.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	liked, err := s.likeRepo.Exists(ctx, me, post)
	if err != nil {
		return solana.Signature{}, err
	}
	if liked == like {
		return solana.Signature{}, nil
	}
	if like {
		if _, err := s.posts.Get(ctx, post); errors.Is(err, repository.ErrNotFound) {
			return solana.Signature{}, fmt.Errorf("%w: %s", ErrPostNotFound, post)
		} else if err != nil {
			return solana.Signature{}, err
		}
	}
	data := codec.EncodeLikePost()
	if !like {
		data = codec.EncodeUnlikePost()
	}
	ix, err := s.accounts.like(me, post, data, like)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.publisher.Publish(ctx, []rpc.Kind{rpc.KindRelationships, rpc.KindPosts}, ix)
}

func (s *relationshipService) Like(ctx context.Context, post solana.PublicKey) (solana.Signature, error) {
	return s.like(ctx, post, true)
}

func (s *relationshipService) Unlike(ctx context.Context, post solana.PublicKey) (solana.Signature, error) {
	return s.like(ctx, post, false)
}

func (s *relationshipService) IsFollowing(ctx context.Context, follower, following solana.PublicKey) (bool, error) {
	return s.followRepo.Exists(ctx, follower, following)
}

func pageOffset(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return (page - 1) * pageSize, pageSize
}

func (s *relationshipService) ListFollowing(ctx context.Context, user solana.PublicKey, page, pageSize int) ([]solana.PublicKey, error) {
	offset, limit := pageOffset(page, pageSize)
	items, err := s.followRepo.ListFollowings(ctx, user, offset, limit)
	if err != nil {
		return nil, err
	}
	return pluck(items, func(f model.FollowRelation) solana.PublicKey { return f.Following }), nil
}

func (s *relationshipService) ListFans(ctx context.Context, user solana.PublicKey, page, pageSize int) ([]solana.PublicKey, error) {
	offset, limit := pageOffset(page, pageSize)
	items, err := s.fanRepo.ListFans(ctx, user, offset, limit)
	if err != nil {
		return nil, err
	}
	return pluck(items, func(f model.FollowRelation) solana.PublicKey { return f.Follower }), nil
}

func pluck[T any](items []T, fn func(T) solana.PublicKey) []solana.PublicKey {
	res := make([]solana.PublicKey, len(items))
	for i, it := range items {
		res[i] = fn(it)
	}
	return res
}
