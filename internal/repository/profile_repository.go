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

type ProfileRepository interface {
	Get(ctx context.Context, owner solana.PublicKey) (*model.UserProfile, error)
	Exists(ctx context.Context, owner solana.PublicKey) (bool, error)
	// GetMany returns profiles keyed by owner; owners without a profile are omitted.
	GetMany(ctx context.Context, owners []solana.PublicKey) (map[solana.PublicKey]model.UserProfile, error)
}

type profileRepository struct {
	reader  Reader
	deriver *pda.Deriver
}

func NewProfileRepository(reader Reader, deriver *pda.Deriver) ProfileRepository {
	return &profileRepository{reader: reader, deriver: deriver}
}

func (r *profileRepository) fetch(ctx context.Context, owner solana.PublicKey) (solana.PublicKey, rpc.Fetched, error) {
	addr, _, err := r.deriver.UserProfile(owner)
	if err != nil {
		return solana.PublicKey{}, rpc.Fetched{}, err
	}
	f, err := r.reader.Fetch(ctx, rpc.KindProfiles, addr)
	return addr, f, err
}

func (r *profileRepository) Get(ctx context.Context, owner solana.PublicKey) (*model.UserProfile, error) {
	addr, f, err := r.fetch(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !f.Exists {
		return nil, ErrNotFound
	}
	p, err := codec.DecodeUserProfile(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", addr, err)
	}
	p.Address = addr
	return &p, nil
}

func (r *profileRepository) Exists(ctx context.Context, owner solana.PublicKey) (bool, error) {
	_, f, err := r.fetch(ctx, owner)
	if err != nil {
		return false, err
	}
	return f.Exists, nil
}

func (r *profileRepository) GetMany(ctx context.Context, owners []solana.PublicKey) (map[solana.PublicKey]model.UserProfile, error) {
	addrs := make([]solana.PublicKey, 0, len(owners))
	for _, o := range owners {
		addr, _, err := r.deriver.UserProfile(o)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	found, _, err := r.reader.FetchMany(ctx, rpc.KindProfiles, addrs)
	if err != nil {
		return nil, err
	}
	out := make(map[solana.PublicKey]model.UserProfile, len(found))
	for addr, data := range found {
		p, err := codec.DecodeUserProfile(data)
		if err != nil {
			continue
		}
		p.Address = addr
		out[p.Owner] = p
	}
	return out, nil
}
