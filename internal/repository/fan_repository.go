package repository

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
)

// FanRepository 粉丝列表：同一批关注账户按 following 字段过滤
type FanRepository interface {
	ListFans(ctx context.Context, user solana.PublicKey, offset, limit int) ([]model.FollowRelation, error)
}

type fanRepository struct {
	reader  Reader
	deriver *pda.Deriver
}

func NewFanRepository(reader Reader, deriver *pda.Deriver) FanRepository {
	return &fanRepository{reader: reader, deriver: deriver}
}

func (r *fanRepository) ListFans(ctx context.Context, user solana.PublicKey, offset, limit int) ([]model.FollowRelation, error) {
	return listFollows(ctx, r.reader, r.deriver.ProgramID(), codec.FollowFollowingOffset, user, offset, limit)
}
