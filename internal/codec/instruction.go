package codec

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/model"
)

// 资料字段长度上限（字节）
const (
	MaxUsernameLength      = 50
	MaxDisplayNameLength   = 50
	MaxBioLength           = 160
	MaxAvatarURLLength     = 200
	MaxCoverImageURLLength = 200
	MaxWebsiteURLLength    = 200
	MaxLocationLength      = 100
)

type InstructionKind int

const (
	InstructionUnknown InstructionKind = iota
	InstructionInitialize
	InstructionCreateTextPost
	InstructionCreateImagePost
	InstructionLinkCNFTToPost
	InstructionFollowUser
	InstructionUnfollowUser
	InstructionLikePost
	InstructionUnlikePost
	InstructionInitializeUserProfile
	InstructionUpdateUserProfile
)

var instructionNames = map[InstructionKind]string{
	InstructionInitialize:            "initialize",
	InstructionCreateTextPost:        "create_text_post",
	InstructionCreateImagePost:       "create_image_post",
	InstructionLinkCNFTToPost:        "link_cnft_to_post",
	InstructionFollowUser:            "follow_user",
	InstructionUnfollowUser:          "unfollow_user",
	InstructionLikePost:              "like_post",
	InstructionUnlikePost:            "unlike_post",
	InstructionInitializeUserProfile: "initialize_user_profile",
	InstructionUpdateUserProfile:     "update_user_profile",
}

var instructionByDisc = func() map[Discriminator]InstructionKind {
	m := make(map[Discriminator]InstructionKind, len(instructionNames))
	for k, name := range instructionNames {
		m[InstructionDiscriminator(name)] = k
	}
	return m
}()

func (k InstructionKind) String() string {
	if n, ok := instructionNames[k]; ok {
		return n
	}
	return "unknown"
}

// Instruction 解码后的指令；只有与 Kind 对应的字段有值
type Instruction struct {
	Kind      InstructionKind
	Content   string
	Timestamp int64
	ReplyTo   *solana.PublicKey
	CNFT      solana.PublicKey
	Profile   model.ProfileUpdate
}

// IsPostCreation reports whether the instruction creates a post.
func (i Instruction) IsPostCreation() bool {
	return i.Kind == InstructionCreateTextPost || i.Kind == InstructionCreateImagePost
}

func checkContent(content string) error {
	if len(content) == 0 {
		return ErrContentEmpty
	}
	if len(content) > model.MaxContentLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrContentTooLong, len(content), model.MaxContentLength)
	}
	return nil
}

func encodeBare(d Discriminator) []byte {
	out := make([]byte, DiscriminatorSize)
	copy(out, d[:])
	return out
}

func EncodeInitialize() []byte { return encodeBare(DiscInitialize) }

func EncodeInitializeUserProfile() []byte { return encodeBare(DiscInitializeUserProfile) }

func EncodeFollowUser() []byte { return encodeBare(DiscFollowUser) }

func EncodeUnfollowUser() []byte { return encodeBare(DiscUnfollowUser) }

func EncodeLikePost() []byte { return encodeBare(DiscLikePost) }

func EncodeUnlikePost() []byte { return encodeBare(DiscUnlikePost) }

func encodePost(d Discriminator, content string, timestamp int64, replyTo *solana.PublicKey) ([]byte, error) {
	if err := checkContent(content); err != nil {
		return nil, err
	}
	w := newWriter(d)
	w.str(content)
	w.i64(timestamp)
	w.optPubkey(replyTo)
	return w.bytes()
}

// EncodeCreateTextPost layout: disc | u32 len | content | i64 ts | option<pubkey> reply_to
func EncodeCreateTextPost(content string, timestamp int64, replyTo *solana.PublicKey) ([]byte, error) {
	return encodePost(DiscCreateTextPost, content, timestamp, replyTo)
}

func EncodeCreateImagePost(content string, timestamp int64, replyTo *solana.PublicKey) ([]byte, error) {
	return encodePost(DiscCreateImagePost, content, timestamp, replyTo)
}

func EncodeLinkImage(cnft solana.PublicKey) ([]byte, error) {
	w := newWriter(DiscLinkCNFTToPost)
	w.pubkey(cnft)
	return w.bytes()
}

// normalizeOptional maps nil, empty and whitespace-only values to absent.
func normalizeOptional(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

type profileField struct {
	name  string
	value *string
	limit int
}

func profileFields(u model.ProfileUpdate) []profileField {
	return []profileField{
		{"username", u.Username, MaxUsernameLength},
		{"display_name", u.DisplayName, MaxDisplayNameLength},
		{"bio", u.Bio, MaxBioLength},
		{"avatar_url", u.AvatarURL, MaxAvatarURLLength},
		{"cover_image_url", u.CoverImageURL, MaxCoverImageURLLength},
		{"website_url", u.WebsiteURL, MaxWebsiteURLLength},
		{"location", u.Location, MaxLocationLength},
	}
}

// NormalizeProfileUpdate returns the update as it will be sent on the wire.
func NormalizeProfileUpdate(u model.ProfileUpdate) model.ProfileUpdate {
	return model.ProfileUpdate{
		Username:      normalizeOptional(u.Username),
		DisplayName:   normalizeOptional(u.DisplayName),
		Bio:           normalizeOptional(u.Bio),
		AvatarURL:     normalizeOptional(u.AvatarURL),
		CoverImageURL: normalizeOptional(u.CoverImageURL),
		WebsiteURL:    normalizeOptional(u.WebsiteURL),
		Location:      normalizeOptional(u.Location),
	}
}

// EncodeUpdateUserProfile writes the seven optional fields in program order.
func EncodeUpdateUserProfile(u model.ProfileUpdate) ([]byte, error) {
	fields := profileFields(NormalizeProfileUpdate(u))
	for _, f := range fields {
		if f.value != nil && len(*f.value) > f.limit {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFieldTooLong, f.name, len(*f.value), f.limit)
		}
	}
	w := newWriter(DiscUpdateUserProfile)
	for _, f := range fields {
		w.optString(f.value)
	}
	return w.bytes()
}

// DecodeInstruction parses instruction data produced by the program's clients.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < DiscriminatorSize {
		return Instruction{}, fmt.Errorf("%w: instruction is %d bytes", ErrTruncatedAccount, len(data))
	}
	var d Discriminator
	copy(d[:], data[:DiscriminatorSize])
	kind, ok := instructionByDisc[d]
	if !ok {
		return Instruction{}, fmt.Errorf("%w: instruction %s", ErrUnknownDiscriminator, d)
	}

	ix := Instruction{Kind: kind}
	r := newReader(data)
	r.raw(DiscriminatorSize, "discriminator")
	switch kind {
	case InstructionCreateTextPost, InstructionCreateImagePost:
		ix.Content = r.str("content")
		ix.Timestamp = r.i64("timestamp")
		ix.ReplyTo = r.optPubkey("reply_to")
	case InstructionLinkCNFTToPost:
		ix.CNFT = r.pubkey("cnft_address")
	case InstructionUpdateUserProfile:
		ix.Profile.Username = r.optString("username")
		ix.Profile.DisplayName = r.optString("display_name")
		ix.Profile.Bio = r.optString("bio")
		ix.Profile.AvatarURL = r.optString("avatar_url")
		ix.Profile.CoverImageURL = r.optString("cover_image_url")
		ix.Profile.WebsiteURL = r.optString("website_url")
		ix.Profile.Location = r.optString("location")
	}
	if r.err != nil {
		return Instruction{}, r.err
	}
	return ix, nil
}

// HasDiscriminator reports whether data starts with d.
func HasDiscriminator(data []byte, d Discriminator) bool {
	return len(data) >= DiscriminatorSize && bytes.Equal(data[:DiscriminatorSize], d[:])
}
