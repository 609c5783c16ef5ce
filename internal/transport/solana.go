// Package transport 提供基于 solana-go JSON-RPC 的 rpc.Transport 实现
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/jonboulle/clockwork"

	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

const defaultConfirmInterval = 500 * time.Millisecond

var _ rpc.Transport = (*Solana)(nil)

// Solana talks to one ledger HTTP endpoint.
type Solana struct {
	client          *solrpc.Client
	commitment      solrpc.CommitmentType
	clock           clockwork.Clock
	confirmInterval time.Duration
}

type Option func(*Solana)

func WithCommitment(c solrpc.CommitmentType) Option {
	return func(s *Solana) { s.commitment = c }
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Solana) { s.clock = clock }
}

// WithConfirmInterval 设置 ConfirmTransaction 的轮询间隔
func WithConfirmInterval(d time.Duration) Option {
	return func(s *Solana) { s.confirmInterval = d }
}

func New(endpoint string, opts ...Option) *Solana {
	s := &Solana{
		client:          solrpc.New(endpoint),
		commitment:      solrpc.CommitmentConfirmed,
		clock:           clockwork.NewRealClock(),
		confirmInterval: defaultConfirmInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// translate 把 HTTP 层的 429 显式映射为上游限流
func translate(err error) error {
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", rpc.ErrRateLimitExceeded, err)
	}
	return err
}

func (s *Solana) GetAccountInfo(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	out, err := s.client.GetAccountInfoWithOpts(ctx, addr, &solrpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: s.commitment,
	})
	if errors.Is(err, solrpc.ErrNotFound) {
		return nil, rpc.ErrAccountNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return out.Value.Data.GetBinary(), nil
}

func (s *Solana) GetMultipleAccounts(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error) {
	out, err := s.client.GetMultipleAccountsWithOpts(ctx, addrs, &solrpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: s.commitment,
	})
	if errors.Is(err, solrpc.ErrNotFound) {
		return make([][]byte, len(addrs)), nil
	}
	if err != nil {
		return nil, translate(err)
	}
	res := make([][]byte, len(addrs))
	for i, acc := range out.Value {
		if i >= len(res) {
			break
		}
		if acc != nil && acc.Data != nil {
			res[i] = acc.Data.GetBinary()
		}
	}
	return res, nil
}

func (s *Solana) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.Filter) ([]rpc.KeyedAccount, error) {
	rf := make([]solrpc.RPCFilter, 0, len(filters))
	for _, f := range filters {
		if f.DataSize > 0 {
			rf = append(rf, solrpc.RPCFilter{DataSize: f.DataSize})
			continue
		}
		rf = append(rf, solrpc.RPCFilter{Memcmp: &solrpc.RPCFilterMemcmp{Offset: f.Offset, Bytes: solana.Base58(f.Bytes)}})
	}
	out, err := s.client.GetProgramAccountsWithOpts(ctx, program, &solrpc.GetProgramAccountsOpts{
		Commitment: s.commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    rf,
	})
	if err != nil {
		return nil, translate(err)
	}
	res := make([]rpc.KeyedAccount, 0, len(out))
	for _, ka := range out {
		if ka == nil || ka.Account == nil || ka.Account.Data == nil {
			continue
		}
		res = append(res, rpc.KeyedAccount{Address: ka.Pubkey, Data: ka.Account.Data.GetBinary()})
	}
	return res, nil
}

func (s *Solana) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := s.client.GetLatestBlockhash(ctx, solrpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, translate(err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("empty getLatestBlockhash result")
	}
	return out.Value.Blockhash, nil
}

func (s *Solana) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	sig, err := s.client.SendRawTransactionWithOpts(ctx, raw, solrpc.TransactionOpts{
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		return solana.Signature{}, translate(err)
	}
	return sig, nil
}

// ConfirmTransaction 轮询签名状态直到 confirmed/finalized、失败或 ctx 结束
func (s *Solana) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ticker := s.clock.NewTicker(s.confirmInterval)
	defer ticker.Stop()

	for {
		done, err := s.signatureDone(ctx, sig)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (s *Solana) signatureDone(ctx context.Context, sig solana.Signature) (bool, error) {
	out, err := s.client.GetSignatureStatuses(ctx, false, sig)
	if errors.Is(err, solrpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}
	st := out.Value[0]
	if st.Err != nil {
		return false, fmt.Errorf("%w: %s: %v", rpc.ErrTransactionFailed, sig, st.Err)
	}
	switch st.ConfirmationStatus {
	case solrpc.ConfirmationStatusConfirmed, solrpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}

func (s *Solana) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.TransactionDetail, error) {
	version := solrpc.MaxSupportedTransactionVersion0
	out, err := s.client.GetTransaction(ctx, sig, &solrpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     solrpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &version,
	})
	if errors.Is(err, solrpc.ErrNotFound) {
		return nil, rpc.ErrTransactionNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	if out.Transaction == nil {
		return nil, rpc.ErrTransactionNotFound
	}
	d := &rpc.TransactionDetail{
		Signature: sig,
		Slot:      out.Slot,
		Raw:       out.Transaction.GetBinary(),
	}
	if out.BlockTime != nil {
		d.BlockTime = int64(*out.BlockTime)
	}
	if out.Meta != nil && out.Meta.Err != nil {
		d.Failed = true
	}
	return d, nil
}
