package repository

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

type LikeRepository interface {
	Exists(ctx context.Context, user, post solana.PublicKey) (bool, error)
	ListByPost(ctx context.Context, post solana.PublicKey, offset, limit int) ([]model.LikeRelation, error)
	ListByUser(ctx context.Context, user solana.PublicKey, offset, limit int) ([]model.LikeRelation, error)
}

type likeRepository struct {
	reader  Reader
	deriver *pda.Deriver
}

func NewLikeRepository(reader Reader, deriver *pda.Deriver) LikeRepository {
	return &likeRepository{reader: reader, deriver: deriver}
}

func (r *likeRepository) Exists(ctx context.Context, user, post solana.PublicKey) (bool, error) {
	addr, _, err := r.deriver.Like(user, post)
	if err != nil {
		return false, err
	}
	f, err := r.reader.Fetch(ctx, rpc.KindRelationships, addr)
	if err != nil {
		return false, err
	}
	return f.Exists, nil
}

func (r *likeRepository) list(ctx context.Context, offset uint64, key solana.PublicKey, skip, limit int) ([]model.LikeRelation, error) {
	accounts, _, err := r.reader.QueryByFilter(ctx, rpc.KindRelationships, r.deriver.ProgramID(), []rpc.Filter{
		discriminatorFilter(codec.DiscLikeRelationAccount),
		rpc.Memcmp(offset, key.Bytes()),
	})
	if err != nil {
		return nil, err
	}
	likes := decodeAll(accounts, "like", codec.DecodeLikeRelation, func(l *model.LikeRelation, a solana.PublicKey) { l.Address = a })
	sortNewestFirst(likes,
		func(l model.LikeRelation) int64 { return l.Timestamp },
		func(l model.LikeRelation) solana.PublicKey { return l.Address },
	)
	return window(likes, skip, limit), nil
}

func (r *likeRepository) ListByPost(ctx context.Context, post solana.PublicKey, offset, limit int) ([]model.LikeRelation, error) {
	return r.list(ctx, codec.LikePostOffset, post, offset, limit)
}

func (r *likeRepository) ListByUser(ctx context.Context, user solana.PublicKey, offset, limit int) ([]model.LikeRelation, error) {
	return r.list(ctx, codec.LikeUserOffset, user, offset, limit)
}
