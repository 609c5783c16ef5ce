package realtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/rpc/v2/json2"
)

var (
	ErrChannelClosed      = errors.New("realtime: channel closed")
	ErrSubscriptionFailed = errors.New("realtime: subscription failed")
)

type MessageKind int

const (
	MessageDiscard MessageKind = iota
	MessageAck
	MessageLogs
	MessageProgram
	MessageFailure
)

func (k MessageKind) String() string {
	switch k {
	case MessageAck:
		return "ack"
	case MessageLogs:
		return "logs"
	case MessageProgram:
		return "program"
	case MessageFailure:
		return "failure"
	default:
		return "discard"
	}
}

// Message 推送通道上的一条消息，按 Kind 取对应字段
type Message struct {
	Kind MessageKind

	// Ack
	SubscriptionID uint64

	// Logs
	Signature solana.Signature

	// Program
	Account solana.PublicKey
	Data    []byte

	// Failure
	Err error
}

type notification struct {
	Method string `json:"method"`
	Params *struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

type logsValue struct {
	Signature string          `json:"signature"`
	Err       json.RawMessage `json:"err"`
}

type programValue struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"`
	} `json:"account"`
}

// ParseMessage classifies a raw frame. Shapes it does not recognise become
// MessageDiscard; it never returns an error.
func ParseMessage(raw []byte) Message {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Message{Kind: MessageDiscard}
	}
	if n.Method == "" {
		return parseResponse(raw)
	}
	if n.Params == nil {
		return Message{Kind: MessageDiscard}
	}

	switch n.Method {
	case "logsNotification":
		var v logsValue
		if err := json.Unmarshal(n.Params.Result.Value, &v); err != nil {
			return Message{Kind: MessageDiscard}
		}
		// 失败交易不会产生帖子
		if len(v.Err) > 0 && !bytes.Equal(v.Err, []byte("null")) {
			return Message{Kind: MessageDiscard}
		}
		sig, err := solana.SignatureFromBase58(v.Signature)
		if err != nil {
			return Message{Kind: MessageDiscard}
		}
		return Message{Kind: MessageLogs, SubscriptionID: n.Params.Subscription, Signature: sig}

	case "programNotification":
		var v programValue
		if err := json.Unmarshal(n.Params.Result.Value, &v); err != nil {
			return Message{Kind: MessageDiscard}
		}
		addr, err := solana.PublicKeyFromBase58(v.Pubkey)
		if err != nil || len(v.Account.Data) != 2 || v.Account.Data[1] != "base64" {
			return Message{Kind: MessageDiscard}
		}
		data, err := base64.StdEncoding.DecodeString(v.Account.Data[0])
		if err != nil {
			return Message{Kind: MessageDiscard}
		}
		return Message{Kind: MessageProgram, SubscriptionID: n.Params.Subscription, Account: addr, Data: data}
	}
	return Message{Kind: MessageDiscard}
}

func parseResponse(raw []byte) Message {
	var id uint64
	err := json2.DecodeClientResponse(bytes.NewReader(raw), &id)
	if err == nil {
		return Message{Kind: MessageAck, SubscriptionID: id}
	}
	var rpcErr *json2.Error
	if errors.As(err, &rpcErr) {
		return Message{Kind: MessageFailure, Err: fmt.Errorf("%w: %d %s", ErrSubscriptionFailed, rpcErr.Code, rpcErr.Message)}
	}
	return Message{Kind: MessageDiscard}
}
