// Package pda derives the program-owned addresses used by the social program.
package pda

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	MaxSeedLength = 32
	// MaxSeeds counts the bump seed as well.
	MaxSeeds = 16
	// MaxBumpAttempts bumps are tried, 255 downward.
	MaxBumpAttempts = 32
)

const (
	SeedPost        = "post"
	SeedUserProfile = "user_profile"
	SeedFollow      = "follow"
	SeedLike        = "like"
)

var (
	ErrInvalidSeed    = errors.New("pda: invalid seed")
	ErrNoAddressFound = errors.New("pda: no viable bump")
)

// Deriver 针对单个 program id 计算 PDA
type Deriver struct {
	programID solana.PublicKey
}

func New(programID solana.PublicKey) *Deriver {
	return &Deriver{programID: programID}
}

func (d *Deriver) ProgramID() solana.PublicKey { return d.programID }

// Find returns the first off-curve address and its bump for the given seeds.
func (d *Deriver) Find(seeds ...[]byte) (solana.PublicKey, uint8, error) {
	if len(seeds)+1 > MaxSeeds {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %d seeds", ErrInvalidSeed, len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return solana.PublicKey{}, 0, fmt.Errorf("%w: seed %d is %d bytes", ErrInvalidSeed, i, len(s))
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := uint8(255)
	for attempt := 0; attempt < MaxBumpAttempts; attempt++ {
		withBump[len(seeds)] = []byte{bump}
		addr, err := solana.CreateProgramAddress(withBump, d.programID)
		if err == nil {
			return addr, bump, nil
		}
		bump--
	}
	return solana.PublicKey{}, 0, ErrNoAddressFound
}

// TimestampSeed 帖子种子中的 8 字节小端时间戳
func TimestampSeed(ts int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(ts))
	return b[:]
}

func (d *Deriver) Post(author solana.PublicKey, timestamp int64) (solana.PublicKey, uint8, error) {
	return d.Find([]byte(SeedPost), author.Bytes(), TimestampSeed(timestamp))
}

func (d *Deriver) UserProfile(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Find([]byte(SeedUserProfile), owner.Bytes())
}

func (d *Deriver) Follow(follower, following solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Find([]byte(SeedFollow), follower.Bytes(), following.Bytes())
}

func (d *Deriver) Like(user, post solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Find([]byte(SeedLike), user.Bytes(), post.Bytes())
}
