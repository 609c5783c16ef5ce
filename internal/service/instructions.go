package service

import (
	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/pda"
)

// accounts 按程序要求的顺序组装各指令的账户列表
type accounts struct {
	deriver  *pda.Deriver
	treasury solana.PublicKey
}

func (a accounts) instruction(metas solana.AccountMetaSlice, data []byte) solana.Instruction {
	return solana.NewInstruction(a.deriver.ProgramID(), metas, data)
}

func (a accounts) initializeProfile(user solana.PublicKey, data []byte) (solana.Instruction, error) {
	profile, _, err := a.deriver.UserProfile(user)
	if err != nil {
		return nil, err
	}
	return a.instruction(solana.AccountMetaSlice{
		solana.Meta(profile).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

func (a accounts) updateProfile(user solana.PublicKey, data []byte) (solana.Instruction, error) {
	profile, _, err := a.deriver.UserProfile(user)
	if err != nil {
		return nil, err
	}
	return a.instruction(solana.AccountMetaSlice{
		solana.Meta(profile).WRITE(),
		solana.Meta(user).SIGNER(),
	}, data), nil
}

func (a accounts) createPost(author solana.PublicKey, timestamp int64, data []byte) (solana.Instruction, solana.PublicKey, error) {
	post, _, err := a.deriver.Post(author, timestamp)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	profile, _, err := a.deriver.UserProfile(author)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return a.instruction(solana.AccountMetaSlice{
		solana.Meta(post).WRITE(),
		solana.Meta(profile).WRITE(),
		solana.Meta(a.treasury).WRITE(),
		solana.Meta(author).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), post, nil
}

func (a accounts) linkImage(post, author solana.PublicKey, data []byte) solana.Instruction {
	return a.instruction(solana.AccountMetaSlice{
		solana.Meta(post).WRITE(),
		solana.Meta(author).SIGNER(),
	}, data)
}

// follow builds follow_user / unfollow_user; only follow_user carries the system program.
func (a accounts) follow(follower, following solana.PublicKey, data []byte, create bool) (solana.Instruction, error) {
	rel, _, err := a.deriver.Follow(follower, following)
	if err != nil {
		return nil, err
	}
	followerProfile, _, err := a.deriver.UserProfile(follower)
	if err != nil {
		return nil, err
	}
	followingProfile, _, err := a.deriver.UserProfile(following)
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(rel).WRITE(),
		solana.Meta(followerProfile).WRITE(),
		solana.Meta(followingProfile).WRITE(),
		solana.Meta(follower).WRITE().SIGNER(),
		solana.Meta(following),
	}
	if create {
		metas = append(metas, solana.Meta(solana.SystemProgramID))
	}
	return a.instruction(metas, data), nil
}

func (a accounts) like(user, post solana.PublicKey, data []byte, create bool) (solana.Instruction, error) {
	rel, _, err := a.deriver.Like(user, post)
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(rel).WRITE(),
		solana.Meta(post).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
	}
	if create {
		metas = append(metas, solana.Meta(solana.SystemProgramID))
	}
	return a.instruction(metas, data), nil
}
