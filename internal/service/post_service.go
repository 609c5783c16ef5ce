package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/media"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

// PostReceipt 发帖结果
type PostReceipt struct {
	Address   solana.PublicKey `json:"address"`
	Signature solana.Signature `json:"signature"`
	Timestamp int64            `json:"timestamp"`
}

type PostService interface {
	CreateTextPost(ctx context.Context, content string, replyTo *solana.PublicKey) (*PostReceipt, error)
	// CreateImagePost uploads the image and appends its ipfs:// reference to the caption.
	CreateImagePost(ctx context.Context, caption, filename string, image io.Reader, replyTo *solana.PublicKey) (*PostReceipt, error)
	LinkImage(ctx context.Context, post, cnft solana.PublicKey) (solana.Signature, error)
}

type postService struct {
	publisher *Publisher
	profiles  repository.ProfileRepository
	uploader  media.Uploader
	accounts  accounts
	clock     clockwork.Clock
}

func NewPostService(publisher *Publisher, profiles repository.ProfileRepository, uploader media.Uploader, deriver *pda.Deriver, treasury solana.PublicKey, clock clockwork.Clock) PostService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &postService{
		publisher: publisher,
		profiles:  profiles,
		uploader:  uploader,
		accounts:  accounts{deriver: deriver, treasury: treasury},
		clock:     clock,
	}
}

var postKinds = []rpc.Kind{rpc.KindPosts, rpc.KindProfiles}

// ensureProfile 作者没有 profile 时返回需要前置的初始化指令
func ensureProfile(ctx context.Context, profiles repository.ProfileRepository, a accounts, owner solana.PublicKey) ([]solana.Instruction, error) {
	ok, err := profiles.Exists(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("check profile: %w", err)
	}
	if ok {
		return nil, nil
	}
	ix, err := a.initializeProfile(owner, codec.EncodeInitializeUserProfile())
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}

func (s *postService) create(ctx context.Context, content string, replyTo *solana.PublicKey,
	encode func(string, int64, *solana.PublicKey) ([]byte, error)) (*PostReceipt, error) {
	ts := s.clock.Now().Unix()
	data, err := encode(content, ts, replyTo)
	if err != nil {
		return nil, err
	}
	author, err := s.publisher.Address()
	if err != nil {
		return nil, err
	}
	ixs, err := ensureProfile(ctx, s.profiles, s.accounts, author)
	if err != nil {
		return nil, err
	}
	ix, addr, err := s.accounts.createPost(author, ts, data)
	if err != nil {
		return nil, err
	}
	sig, err := s.publisher.Publish(ctx, postKinds, append(ixs, ix)...)
	if err != nil {
		return nil, err
	}
	return &PostReceipt{Address: addr, Signature: sig, Timestamp: ts}, nil
}

func (s *postService) CreateTextPost(ctx context.Context, content string, replyTo *solana.PublicKey) (*PostReceipt, error) {
	return s.create(ctx, content, replyTo, codec.EncodeCreateTextPost)
}

func imageContent(caption, cid string) string {
	ref := media.Scheme + cid
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return ref
	}
	return caption + " " + ref
}

func (s *postService) CreateImagePost(ctx context.Context, caption, filename string, image io.Reader, replyTo *solana.PublicKey) (*PostReceipt, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("image upload not configured")
	}
	// 先用占位 CID 校验长度，避免无效内容也上传
	if _, err := codec.EncodeCreateImagePost(imageContent(caption, strings.Repeat("x", media.CIDv0Length)), 0, nil); err != nil {
		return nil, err
	}
	cid, err := s.uploader.Upload(ctx, filename, image)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	return s.create(ctx, imageContent(caption, cid), replyTo, codec.EncodeCreateImagePost)
}

func (s *postService) LinkImage(ctx context.Context, post, cnft solana.PublicKey) (solana.Signature, error) {
	data, err := codec.EncodeLinkImage(cnft)
	if err != nil {
		return solana.Signature{}, err
	}
	author, err := s.publisher.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	return s.publisher.Publish(ctx, []rpc.Kind{rpc.KindPosts}, s.accounts.linkImage(post, author, data))
}
