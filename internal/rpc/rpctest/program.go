package rpctest

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
)

// staged collects account writes so a failing instruction leaves the ledger untouched.
type staged struct {
	base    map[solana.PublicKey][]byte
	writes  map[solana.PublicKey][]byte
	deletes map[solana.PublicKey]bool
}

func (s *staged) get(addr solana.PublicKey) ([]byte, bool) {
	if s.deletes[addr] {
		return nil, false
	}
	if d, ok := s.writes[addr]; ok {
		return d, true
	}
	d, ok := s.base[addr]
	return d, ok
}

func (s *staged) put(addr solana.PublicKey, data []byte) {
	delete(s.deletes, addr)
	s.writes[addr] = data
}

func (s *staged) del(addr solana.PublicKey) {
	delete(s.writes, addr)
	s.deletes[addr] = true
}

// execute runs every instruction addressed to the program; caller holds l.mu.
func (l *Ledger) execute(tx *solana.Transaction) error {
	st := &staged{base: l.accounts, writes: map[solana.PublicKey][]byte{}, deletes: map[solana.PublicKey]bool{}}
	deriver := pda.New(l.ProgramID)

	for i := range tx.Message.Instructions {
		ci := &tx.Message.Instructions[i]
		programID, err := tx.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return err
		}
		if !programID.Equals(l.ProgramID) {
			continue
		}
		metas, err := ci.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return err
		}
		ix, err := codec.DecodeInstruction(ci.Data)
		if err != nil {
			return err
		}
		if err := l.apply(st, deriver, ix, metas); err != nil {
			return fmt.Errorf("%w: %s: %v", errProgram, ix.Kind, err)
		}
	}

	for addr := range st.deletes {
		delete(l.accounts, addr)
	}
	for addr, data := range st.writes {
		l.accounts[addr] = data
	}
	return nil
}

func need(metas []*solana.AccountMeta, n int) error {
	if len(metas) < n {
		return fmt.Errorf("expected %d accounts, got %d", n, len(metas))
	}
	return nil
}

func expectAddr(got, want solana.PublicKey, what string) error {
	if !got.Equals(want) {
		return fmt.Errorf("%s address mismatch: got %s want %s", what, got, want)
	}
	return nil
}

func loadProfile(st *staged, addr solana.PublicKey) (model.UserProfile, error) {
	data, ok := st.get(addr)
	if !ok {
		return model.UserProfile{}, fmt.Errorf("profile %s not initialized", addr)
	}
	return codec.DecodeUserProfile(data)
}

func storeProfile(st *staged, addr solana.PublicKey, p model.UserProfile) error {
	data, err := codec.EncodeUserProfileAccount(p)
	if err != nil {
		return err
	}
	st.put(addr, data)
	return nil
}

func loadPost(st *staged, addr solana.PublicKey) (model.Post, error) {
	data, ok := st.get(addr)
	if !ok {
		return model.Post{}, fmt.Errorf("post %s not found", addr)
	}
	return codec.DecodePost(data)
}

func storePost(st *staged, addr solana.PublicKey, p model.Post) error {
	data, err := codec.EncodePostAccount(p)
	if err != nil {
		return err
	}
	st.put(addr, data)
	return nil
}

func (l *Ledger) apply(st *staged, d *pda.Deriver, ix codec.Instruction, metas []*solana.AccountMeta) error {
	now := l.clock.Now().Unix()

	switch ix.Kind {
	case codec.InstructionInitialize:
		return nil

	case codec.InstructionInitializeUserProfile:
		if err := need(metas, 2); err != nil {
			return err
		}
		profileAddr, user := metas[0].PublicKey, metas[1].PublicKey
		want, bump, err := d.UserProfile(user)
		if err != nil {
			return err
		}
		if err := expectAddr(profileAddr, want, "user_profile"); err != nil {
			return err
		}
		if _, exists := st.get(profileAddr); exists {
			return fmt.Errorf("profile %s already in use", profileAddr)
		}
		return storeProfile(st, profileAddr, model.UserProfile{Owner: user, CreatedAt: now, Version: bump})

	case codec.InstructionUpdateUserProfile:
		if err := need(metas, 2); err != nil {
			return err
		}
		p, err := loadProfile(st, metas[0].PublicKey)
		if err != nil {
			return err
		}
		if !p.Owner.Equals(metas[1].PublicKey) {
			return fmt.Errorf("profile owner mismatch")
		}
		u := ix.Profile
		for dst, src := range map[**string]*string{
			&p.Username: u.Username, &p.DisplayName: u.DisplayName, &p.Bio: u.Bio,
			&p.AvatarURL: u.AvatarURL, &p.CoverImageURL: u.CoverImageURL,
			&p.WebsiteURL: u.WebsiteURL, &p.Location: u.Location,
		} {
			if src != nil {
				*dst = src
			}
		}
		return storeProfile(st, metas[0].PublicKey, p)

	case codec.InstructionCreateTextPost, codec.InstructionCreateImagePost:
		if err := need(metas, 4); err != nil {
			return err
		}
		postAddr, profileAddr, author := metas[0].PublicKey, metas[1].PublicKey, metas[3].PublicKey
		want, bump, err := d.Post(author, ix.Timestamp)
		if err != nil {
			return err
		}
		if err := expectAddr(postAddr, want, "post"); err != nil {
			return err
		}
		if _, exists := st.get(postAddr); exists {
			return fmt.Errorf("post %s already in use", postAddr)
		}
		profile, err := loadProfile(st, profileAddr)
		if err != nil {
			return err
		}
		kind := model.PostKindText
		if ix.Kind == codec.InstructionCreateImagePost {
			kind = model.PostKindImage
		}
		if err := storePost(st, postAddr, model.Post{
			Author:    author,
			Content:   ix.Content,
			Kind:      kind,
			ReplyTo:   ix.ReplyTo,
			Timestamp: ix.Timestamp,
			Version:   bump,
		}); err != nil {
			return err
		}
		profile.PostCount++
		return storeProfile(st, profileAddr, profile)

	case codec.InstructionLinkCNFTToPost:
		if err := need(metas, 2); err != nil {
			return err
		}
		p, err := loadPost(st, metas[0].PublicKey)
		if err != nil {
			return err
		}
		if p.Kind != model.PostKindImage {
			return fmt.Errorf("post is not an image post")
		}
		if !p.Author.Equals(metas[1].PublicKey) {
			return fmt.Errorf("only the author can link images")
		}
		p.ImageChunks = []solana.PublicKey{ix.CNFT}
		p.TotalChunks = 1
		return storePost(st, metas[0].PublicKey, p)

	case codec.InstructionFollowUser, codec.InstructionUnfollowUser:
		if err := need(metas, 5); err != nil {
			return err
		}
		followAddr := metas[0].PublicKey
		follower, following := metas[3].PublicKey, metas[4].PublicKey
		want, bump, err := d.Follow(follower, following)
		if err != nil {
			return err
		}
		if err := expectAddr(followAddr, want, "follow"); err != nil {
			return err
		}
		followerProfile, err := loadProfile(st, metas[1].PublicKey)
		if err != nil {
			return err
		}
		followingProfile, err := loadProfile(st, metas[2].PublicKey)
		if err != nil {
			return err
		}
		_, exists := st.get(followAddr)
		if ix.Kind == codec.InstructionFollowUser {
			if exists {
				return fmt.Errorf("already following")
			}
			data, err := codec.EncodeFollowRelationAccount(model.FollowRelation{
				Follower: follower, Following: following, Timestamp: now, Version: bump,
			})
			if err != nil {
				return err
			}
			st.put(followAddr, data)
			followerProfile.FollowingCount++
			followingProfile.FollowersCount++
		} else {
			if !exists {
				return fmt.Errorf("not following")
			}
			st.del(followAddr)
			followerProfile.FollowingCount--
			followingProfile.FollowersCount--
		}
		if err := storeProfile(st, metas[1].PublicKey, followerProfile); err != nil {
			return err
		}
		return storeProfile(st, metas[2].PublicKey, followingProfile)

	case codec.InstructionLikePost, codec.InstructionUnlikePost:
		if err := need(metas, 3); err != nil {
			return err
		}
		likeAddr, postAddr, user := metas[0].PublicKey, metas[1].PublicKey, metas[2].PublicKey
		want, bump, err := d.Like(user, postAddr)
		if err != nil {
			return err
		}
		if err := expectAddr(likeAddr, want, "like"); err != nil {
			return err
		}
		post, err := loadPost(st, postAddr)
		if err != nil {
			return err
		}
		_, exists := st.get(likeAddr)
		if ix.Kind == codec.InstructionLikePost {
			if exists {
				return fmt.Errorf("already liked")
			}
			data, err := codec.EncodeLikeRelationAccount(model.LikeRelation{User: user, Post: postAddr, Timestamp: now, Version: bump})
			if err != nil {
				return err
			}
			st.put(likeAddr, data)
			post.Likes++
		} else {
			if !exists {
				return fmt.Errorf("not liked")
			}
			st.del(likeAddr)
			post.Likes--
		}
		return storePost(st, postAddr, post)
	}
	return fmt.Errorf("unsupported instruction %s", ix.Kind)
}
