package codec

import (
	"bytes"
	"encoding/hex"

	bin "github.com/gagliardetto/binary"
)

// DiscriminatorSize 指令和账户数据的前缀长度
const DiscriminatorSize = 8

type Discriminator [DiscriminatorSize]byte

func (d Discriminator) String() string { return hex.EncodeToString(d[:]) }

// 名称原样参与哈希，不做大小写转换
func sighash(namespace, name string) Discriminator {
	var d Discriminator
	copy(d[:], bin.Sighash(namespace, name))
	return d
}

// InstructionDiscriminator uses the snake_case instruction name.
func InstructionDiscriminator(name string) Discriminator {
	return sighash(bin.SIGHASH_GLOBAL_NAMESPACE, name)
}

// AccountDiscriminator uses the struct name as declared by the program.
func AccountDiscriminator(name string) Discriminator {
	return sighash(bin.SIGHASH_ACCOUNT_NAMESPACE, name)
}

var (
	DiscInitialize            = InstructionDiscriminator("initialize")
	DiscCreateTextPost        = InstructionDiscriminator("create_text_post")
	DiscCreateImagePost       = InstructionDiscriminator("create_image_post")
	DiscLinkCNFTToPost        = InstructionDiscriminator("link_cnft_to_post")
	DiscFollowUser            = InstructionDiscriminator("follow_user")
	DiscUnfollowUser          = InstructionDiscriminator("unfollow_user")
	DiscLikePost              = InstructionDiscriminator("like_post")
	DiscUnlikePost            = InstructionDiscriminator("unlike_post")
	DiscInitializeUserProfile = InstructionDiscriminator("initialize_user_profile")
	DiscUpdateUserProfile     = InstructionDiscriminator("update_user_profile")

	DiscPostAccount           = AccountDiscriminator("Post")
	DiscUserProfileAccount    = AccountDiscriminator("UserProfile")
	DiscFollowRelationAccount = AccountDiscriminator("FollowRelation")
	DiscLikeRelationAccount   = AccountDiscriminator("LikeRelation")
)

type AccountKind int

const (
	KindUnknown AccountKind = iota
	KindPost
	KindUserProfile
	KindFollowRelation
	KindLikeRelation
)

func (k AccountKind) String() string {
	switch k {
	case KindPost:
		return "Post"
	case KindUserProfile:
		return "UserProfile"
	case KindFollowRelation:
		return "FollowRelation"
	case KindLikeRelation:
		return "LikeRelation"
	default:
		return "unknown"
	}
}

func (k AccountKind) Discriminator() (Discriminator, bool) {
	switch k {
	case KindPost:
		return DiscPostAccount, true
	case KindUserProfile:
		return DiscUserProfileAccount, true
	case KindFollowRelation:
		return DiscFollowRelationAccount, true
	case KindLikeRelation:
		return DiscLikeRelationAccount, true
	}
	return Discriminator{}, false
}

// KindOf 按前缀识别账户类型；未知类型返回 KindUnknown，不视为错误
func KindOf(data []byte) AccountKind {
	if len(data) < DiscriminatorSize {
		return KindUnknown
	}
	prefix := data[:DiscriminatorSize]
	for _, k := range []AccountKind{KindPost, KindUserProfile, KindFollowRelation, KindLikeRelation} {
		d, _ := k.Discriminator()
		if bytes.Equal(prefix, d[:]) {
			return k
		}
	}
	return KindUnknown
}
