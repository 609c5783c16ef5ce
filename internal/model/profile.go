package model

import "github.com/gagliardetto/solana-go"

// UserProfile 用户资料；可选字段 nil 表示缺失，指向 "" 表示存在但为空
type UserProfile struct {
	Address        solana.PublicKey `json:"address"`
	Owner          solana.PublicKey `json:"owner"`
	Username       *string          `json:"username,omitempty"`
	DisplayName    *string          `json:"display_name,omitempty"`
	Bio            *string          `json:"bio,omitempty"`
	AvatarURL      *string          `json:"avatar_url,omitempty"`
	CoverImageURL  *string          `json:"cover_image_url,omitempty"`
	WebsiteURL     *string          `json:"website_url,omitempty"`
	Location       *string          `json:"location,omitempty"`
	FollowersCount uint64           `json:"followers_count"`
	FollowingCount uint64           `json:"following_count"`
	PostCount      uint64           `json:"post_count"`
	CreatedAt      int64            `json:"created_at"`
	Verified       bool             `json:"verified"`
	Version        uint8            `json:"version"`
}

// ProfileUpdate 是 update_user_profile 指令的参数，nil 字段表示不修改
type ProfileUpdate struct {
	Username      *string `json:"username,omitempty"`
	DisplayName   *string `json:"display_name,omitempty"`
	Bio           *string `json:"bio,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	CoverImageURL *string `json:"cover_image_url,omitempty"`
	WebsiteURL    *string `json:"website_url,omitempty"`
	Location      *string `json:"location,omitempty"`
}
