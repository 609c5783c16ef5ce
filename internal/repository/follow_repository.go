package repository

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

// FollowRepository 关注关系读取；关系账户存在即关注成立
type FollowRepository interface {
	Exists(ctx context.Context, follower, following solana.PublicKey) (bool, error)
	ListFollowings(ctx context.Context, follower solana.PublicKey, offset, limit int) ([]model.FollowRelation, error)
}

type followRepository struct {
	reader  Reader
	deriver *pda.Deriver
}

func NewFollowRepository(reader Reader, deriver *pda.Deriver) FollowRepository {
	return &followRepository{reader: reader, deriver: deriver}
}

func (r *followRepository) Exists(ctx context.Context, follower, following solana.PublicKey) (bool, error) {
	addr, _, err := r.deriver.Follow(follower, following)
	if err != nil {
		return false, err
	}
	f, err := r.reader.Fetch(ctx, rpc.KindRelationships, addr)
	if err != nil {
		return false, err
	}
	return f.Exists, nil
}

func (r *followRepository) ListFollowings(ctx context.Context, follower solana.PublicKey, offset, limit int) ([]model.FollowRelation, error) {
	return listFollows(ctx, r.reader, r.deriver.ProgramID(), codec.FollowFollowerOffset, follower, offset, limit)
}

// listFollows 按 memcmp 过滤关注关系账户，follower 与 fan 两个方向共用
func listFollows(ctx context.Context, reader Reader, program solana.PublicKey, offset uint64, key solana.PublicKey, skip, limit int) ([]model.FollowRelation, error) {
	accounts, _, err := reader.QueryByFilter(ctx, rpc.KindRelationships, program, []rpc.Filter{
		discriminatorFilter(codec.DiscFollowRelationAccount),
		rpc.Memcmp(offset, key.Bytes()),
	})
	if err != nil {
		return nil, err
	}
	rels := decodeAll(accounts, "follow", codec.DecodeFollowRelation, func(f *model.FollowRelation, a solana.PublicKey) { f.Address = a })
	sortNewestFirst(rels,
		func(f model.FollowRelation) int64 { return f.Timestamp },
		func(f model.FollowRelation) solana.PublicKey { return f.Address },
	)
	return window(rels, skip, limit), nil
}
