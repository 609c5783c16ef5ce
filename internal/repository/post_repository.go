package repository

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

type PostRepository interface {
	Get(ctx context.Context, addr solana.PublicKey) (*model.Post, error)
	// ListRecent returns the newest posts program-wide.
	ListRecent(ctx context.Context, limit int) ([]model.Post, error)
	ListByAuthor(ctx context.Context, author solana.PublicKey, offset, limit int) ([]model.Post, error)
}

type postRepository struct {
	reader  Reader
	deriver *pda.Deriver
}

func NewPostRepository(reader Reader, deriver *pda.Deriver) PostRepository {
	return &postRepository{reader: reader, deriver: deriver}
}

func (r *postRepository) Get(ctx context.Context, addr solana.PublicKey) (*model.Post, error) {
	f, err := r.reader.Fetch(ctx, rpc.KindPosts, addr)
	if err != nil {
		return nil, err
	}
	if !f.Exists {
		return nil, ErrNotFound
	}
	p, err := codec.DecodePost(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode post %s: %w", addr, err)
	}
	p.Address = addr
	return &p, nil
}

func (r *postRepository) query(ctx context.Context, filters ...rpc.Filter) ([]model.Post, error) {
	filters = append([]rpc.Filter{discriminatorFilter(codec.DiscPostAccount)}, filters...)
	accounts, _, err := r.reader.QueryByFilter(ctx, rpc.KindPosts, r.deriver.ProgramID(), filters)
	if err != nil {
		return nil, err
	}
	posts := decodeAll(accounts, "post", codec.DecodePost, func(p *model.Post, a solana.PublicKey) { p.Address = a })
	sortNewestFirst(posts,
		func(p model.Post) int64 { return p.Timestamp },
		func(p model.Post) solana.PublicKey { return p.Address },
	)
	return posts, nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]model.Post, error) {
	posts, err := r.query(ctx)
	if err != nil {
		return nil, err
	}
	return window(posts, 0, limit), nil
}

func (r *postRepository) ListByAuthor(ctx context.Context, author solana.PublicKey, offset, limit int) ([]model.Post, error) {
	posts, err := r.query(ctx, rpc.Memcmp(codec.PostAuthorOffset, author.Bytes()))
	if err != nil {
		return nil, err
	}
	return window(posts, offset, limit), nil
}
