package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// MaxContentLength 帖子正文的字节上限（与链上程序一致）
const MaxContentLength = 280

type PostKind uint8

const (
	PostKindText  PostKind = 0
	PostKindImage PostKind = 1
)

func (k PostKind) String() string {
	switch k {
	case PostKindText:
		return "text"
	case PostKindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Post 链上帖子账户的解码结果
type Post struct {
	Address     solana.PublicKey   `json:"address"`
	Author      solana.PublicKey   `json:"author"`
	Content     string             `json:"content"`
	Kind        PostKind           `json:"kind"`
	ImageChunks []solana.PublicKey `json:"image_chunks"`
	TotalChunks uint8              `json:"total_chunks"`
	ReplyTo     *solana.PublicKey  `json:"reply_to,omitempty"`
	Timestamp   int64              `json:"timestamp"`
	Likes       uint64             `json:"likes"`
	Reposts     uint64             `json:"reposts"`
	Replies     uint64             `json:"replies"`
	Version     uint8              `json:"version"`
}

func (p Post) CreatedAt() time.Time { return time.Unix(p.Timestamp, 0) }

func (p Post) IsReply() bool { return p.ReplyTo != nil }
