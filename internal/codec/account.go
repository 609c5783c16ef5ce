package codec

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/d60-Lab/solcials-sync/internal/model"
)

// memcmp 过滤使用的字段偏移
const (
	PostAuthorOffset      = DiscriminatorSize
	ProfileOwnerOffset    = DiscriminatorSize
	FollowFollowerOffset  = DiscriminatorSize
	FollowFollowingOffset = DiscriminatorSize + solana.PublicKeyLength
	LikeUserOffset        = DiscriminatorSize
	LikePostOffset        = DiscriminatorSize + solana.PublicKeyLength
)

// FollowRelationSize and LikeRelationSize are the fixed account lengths.
const (
	FollowRelationSize = DiscriminatorSize + 2*solana.PublicKeyLength + 8 + 1
	LikeRelationSize   = DiscriminatorSize + 2*solana.PublicKeyLength + 8 + 1
)

func minLength(data []byte, what string) error {
	if len(data) < DiscriminatorSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrTruncatedAccount, what, len(data))
	}
	return nil
}

// DecodePost layout: author | content | post_type u8 | image_chunks vec<pubkey> |
// total_chunks u8 | reply_to option<pubkey> | timestamp i64 | likes | reposts | replies | version u8
func DecodePost(data []byte) (model.Post, error) {
	if err := minLength(data, "post"); err != nil {
		return model.Post{}, err
	}
	r := newReader(data)
	r.discriminator(DiscPostAccount)

	var p model.Post
	p.Author = r.pubkey("author")
	p.Content = r.str("content")
	p.Kind = model.PostKind(r.u8("post_type"))
	p.ImageChunks = r.pubkeys("image_chunks")
	p.TotalChunks = r.u8("total_chunks")
	p.ReplyTo = r.optPubkey("reply_to")
	p.Timestamp = r.i64("timestamp")
	p.Likes = r.u64("likes")
	p.Reposts = r.u64("reposts")
	p.Replies = r.u64("replies")
	p.Version = r.u8("version")
	if r.err != nil {
		return model.Post{}, r.err
	}

	if p.Kind != model.PostKindText && p.Kind != model.PostKindImage {
		return model.Post{}, fmt.Errorf("%w: post_type %d", ErrMalformedAccount, p.Kind)
	}
	if int(p.TotalChunks) != len(p.ImageChunks) {
		return model.Post{}, fmt.Errorf("%w: total_chunks %d but %d chunk addresses", ErrMalformedAccount, p.TotalChunks, len(p.ImageChunks))
	}
	if len(p.Content) > model.MaxContentLength {
		return model.Post{}, fmt.Errorf("%w: content is %d bytes", ErrMalformedAccount, len(p.Content))
	}
	return p, nil
}

func EncodePostAccount(p model.Post) ([]byte, error) {
	w := newWriter(DiscPostAccount)
	w.pubkey(p.Author)
	w.str(p.Content)
	w.u8(uint8(p.Kind))
	w.u32(uint32(len(p.ImageChunks)))
	for _, c := range p.ImageChunks {
		w.pubkey(c)
	}
	w.u8(p.TotalChunks)
	w.optPubkey(p.ReplyTo)
	w.i64(p.Timestamp)
	w.u64(p.Likes)
	w.u64(p.Reposts)
	w.u64(p.Replies)
	w.u8(p.Version)
	return w.bytes()
}

func DecodeUserProfile(data []byte) (model.UserProfile, error) {
	if err := minLength(data, "user profile"); err != nil {
		return model.UserProfile{}, err
	}
	r := newReader(data)
	r.discriminator(DiscUserProfileAccount)

	var u model.UserProfile
	u.Owner = r.pubkey("user")
	u.Username = r.optString("username")
	u.DisplayName = r.optString("display_name")
	u.Bio = r.optString("bio")
	u.AvatarURL = r.optString("avatar_url")
	u.CoverImageURL = r.optString("cover_image_url")
	u.WebsiteURL = r.optString("website_url")
	u.Location = r.optString("location")
	u.FollowersCount = r.u64("followers_count")
	u.FollowingCount = r.u64("following_count")
	u.PostCount = r.u64("post_count")
	u.CreatedAt = r.i64("created_at")
	u.Verified = r.flag("verified")
	u.Version = r.u8("version")
	if r.err != nil {
		return model.UserProfile{}, r.err
	}
	return u, nil
}

func EncodeUserProfileAccount(u model.UserProfile) ([]byte, error) {
	w := newWriter(DiscUserProfileAccount)
	w.pubkey(u.Owner)
	w.optString(u.Username)
	w.optString(u.DisplayName)
	w.optString(u.Bio)
	w.optString(u.AvatarURL)
	w.optString(u.CoverImageURL)
	w.optString(u.WebsiteURL)
	w.optString(u.Location)
	w.u64(u.FollowersCount)
	w.u64(u.FollowingCount)
	w.u64(u.PostCount)
	w.i64(u.CreatedAt)
	w.boolean(u.Verified)
	w.u8(u.Version)
	return w.bytes()
}

func DecodeFollowRelation(data []byte) (model.FollowRelation, error) {
	if err := minLength(data, "follow relation"); err != nil {
		return model.FollowRelation{}, err
	}
	r := newReader(data)
	r.discriminator(DiscFollowRelationAccount)

	var f model.FollowRelation
	f.Follower = r.pubkey("follower")
	f.Following = r.pubkey("following")
	f.Timestamp = r.i64("timestamp")
	f.Version = r.u8("version")
	if r.err != nil {
		return model.FollowRelation{}, r.err
	}
	return f, nil
}

func EncodeFollowRelationAccount(f model.FollowRelation) ([]byte, error) {
	w := newWriter(DiscFollowRelationAccount)
	w.pubkey(f.Follower)
	w.pubkey(f.Following)
	w.i64(f.Timestamp)
	w.u8(f.Version)
	return w.bytes()
}

func DecodeLikeRelation(data []byte) (model.LikeRelation, error) {
	if err := minLength(data, "like relation"); err != nil {
		return model.LikeRelation{}, err
	}
	r := newReader(data)
	r.discriminator(DiscLikeRelationAccount)

	var l model.LikeRelation
	l.User = r.pubkey("user")
	l.Post = r.pubkey("post")
	l.Timestamp = r.i64("timestamp")
	l.Version = r.u8("version")
	if r.err != nil {
		return model.LikeRelation{}, r.err
	}
	return l, nil
}

func EncodeLikeRelationAccount(l model.LikeRelation) ([]byte, error) {
	w := newWriter(DiscLikeRelationAccount)
	w.pubkey(l.User)
	w.pubkey(l.Post)
	w.i64(l.Timestamp)
	w.u8(l.Version)
	return w.bytes()
}
