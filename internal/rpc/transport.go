// Package rpc 是账本访问层：限流、串行队列、重试、TTL 缓存与降级
package rpc

import (
	"context"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Filter 对应 getProgramAccounts 的过滤条件；DataSize 非零时为 dataSize 过滤，否则为 memcmp
type Filter struct {
	Offset   uint64 `json:"offset,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	DataSize uint64 `json:"data_size,omitempty"`
}

func Memcmp(offset uint64, b []byte) Filter { return Filter{Offset: offset, Bytes: b} }

func DataSize(n uint64) Filter { return Filter{DataSize: n} }

type KeyedAccount struct {
	Address solana.PublicKey `json:"address"`
	Data    []byte           `json:"data"`
}

// TransactionDetail keeps the wire bytes so it can be cached as-is.
type TransactionDetail struct {
	Signature solana.Signature `json:"signature"`
	Slot      uint64           `json:"slot"`
	BlockTime int64            `json:"block_time"`
	Raw       []byte           `json:"raw"`
	Failed    bool             `json:"failed"`
}

func (d *TransactionDetail) Decode() (*solana.Transaction, error) {
	return solana.TransactionFromDecoder(bin.NewBinDecoder(d.Raw))
}

// Transport 是底层账本 JSON-RPC 的抽象
type Transport interface {
	// GetAccountInfo returns ErrAccountNotFound for absent accounts.
	GetAccountInfo(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	// GetMultipleAccounts returns one entry per address, nil for absent ones.
	GetMultipleAccounts(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error)
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []Filter) ([]KeyedAccount, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	// ConfirmTransaction blocks until the signature is confirmed, fails, or ctx ends.
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
	// GetTransaction returns ErrTransactionNotFound when the ledger has no record.
	GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionDetail, error)
}
