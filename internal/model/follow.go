package model

import (
	"github.com/gagliardetto/solana-go"
)

// FollowRelation 关注关系（Follower 关注 Following）
// 账户地址 = pda("follow", follower, following)，账户存在即关系成立
type FollowRelation struct {
	Address   solana.PublicKey `json:"address"`
	Follower  solana.PublicKey `json:"follower"`
	Following solana.PublicKey `json:"following"`
	Timestamp int64            `json:"timestamp"`
	Version   uint8            `json:"version"`
}
