// Package repository 提供链上账户的类型化读取路径
package repository

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

var ErrNotFound = errors.New("repository: account not found")

// Reader is the read side of the ledger access layer; *rpc.Client implements it.
type Reader interface {
	Fetch(ctx context.Context, kind rpc.Kind, addr solana.PublicKey) (rpc.Fetched, error)
	FetchMany(ctx context.Context, kind rpc.Kind, addrs []solana.PublicKey) (map[solana.PublicKey][]byte, rpc.Source, error)
	QueryByFilter(ctx context.Context, kind rpc.Kind, program solana.PublicKey, filters []rpc.Filter) ([]rpc.KeyedAccount, rpc.Source, error)
}

func discriminatorFilter(d codec.Discriminator) rpc.Filter {
	return rpc.Memcmp(0, d[:])
}

// decodeAll 逐个解码，解析失败的账户跳过
func decodeAll[T any](accounts []rpc.KeyedAccount, kind string, decode func([]byte) (T, error), setAddr func(*T, solana.PublicKey)) []T {
	out := make([]T, 0, len(accounts))
	for _, ka := range accounts {
		v, err := decode(ka.Data)
		if err != nil {
			logger.Debug("skip undecodable account",
				zap.String("kind", kind),
				zap.String("address", ka.Address.String()),
				zap.Error(err),
			)
			continue
		}
		setAddr(&v, ka.Address)
		out = append(out, v)
	}
	return out
}

// sortNewestFirst orders by timestamp desc, address asc on ties.
func sortNewestFirst[T any](items []T, ts func(T) int64, addr func(T) solana.PublicKey) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := ts(items[i]), ts(items[j])
		if ti != tj {
			return ti > tj
		}
		ai, aj := addr(items[i]), addr(items[j])
		return bytes.Compare(ai[:], aj[:]) < 0
	})
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
