package model

import "github.com/gagliardetto/solana-go"

// LikeRelation 点赞关系，地址 = pda("like", user, post)
type LikeRelation struct {
	Address   solana.PublicKey `json:"address"`
	User      solana.PublicKey `json:"user"`
	Post      solana.PublicKey `json:"post"`
	Timestamp int64            `json:"timestamp"`
	Version   uint8            `json:"version"`
}
