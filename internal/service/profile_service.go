package service

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

type ProfileService interface {
	// Initialize creates the caller's profile; a zero signature means it already existed.
	Initialize(ctx context.Context) (solana.Signature, error)
	Update(ctx context.Context, update model.ProfileUpdate) (solana.Signature, error)
	Get(ctx context.Context, owner solana.PublicKey) (*model.UserProfile, error)
}

type profileService struct {
	publisher *Publisher
	profiles  repository.ProfileRepository
	accounts  accounts
}

func NewProfileService(publisher *Publisher, profiles repository.ProfileRepository, deriver *pda.Deriver) ProfileService {
	return &profileService{publisher: publisher, profiles: profiles, accounts: accounts{deriver: deriver}}
}

func (s *profileService) Initialize(ctx context.Context) (solana.Signature, error) {
	me, err := s.publisher.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	ixs, err := ensureProfile(ctx, s.profiles, s.accounts, me)
	if err != nil || len(ixs) == 0 {
		return solana.Signature{}, err
	}
	return s.publisher.Publish(ctx, []rpc.Kind{rpc.KindProfiles}, ixs...)
}

func (s *profileService) Update(ctx context.Context, update model.ProfileUpdate) (solana.Signature, error) {
	data, err := codec.EncodeUpdateUserProfile(update)
	if err != nil {
		return solana.Signature{}, err
	}
	me, err := s.publisher.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	ixs, err := ensureProfile(ctx, s.profiles, s.accounts, me)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := s.accounts.updateProfile(me, data)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.publisher.Publish(ctx, []rpc.Kind{rpc.KindProfiles}, append(ixs, ix)...)
}

func (s *profileService) Get(ctx context.Context, owner solana.PublicKey) (*model.UserProfile, error) {
	return s.profiles.Get(ctx, owner)
}
