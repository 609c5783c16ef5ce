// Package rpctest provides an in-memory ledger that speaks rpc.Transport and
// executes the social program's instructions.
package rpctest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

// Method names used by Calls, FailNext and hooks.
const (
	MethodGetAccountInfo      = "getAccountInfo"
	MethodGetMultipleAccounts = "getMultipleAccounts"
	MethodGetProgramAccounts  = "getProgramAccounts"
	MethodGetLatestBlockhash  = "getLatestBlockhash"
	MethodSendRawTransaction  = "sendRawTransaction"
	MethodConfirmTransaction  = "confirmTransaction"
	MethodGetTransaction      = "getTransaction"
)

var _ rpc.Transport = (*Ledger)(nil)

type Ledger struct {
	ProgramID solana.PublicKey

	mu          sync.Mutex
	clock       clockwork.Clock
	accounts    map[solana.PublicKey][]byte
	txs         map[solana.Signature]*rpc.TransactionDetail
	order       []solana.Signature
	slot        uint64
	blockhash   solana.Hash
	calls       map[string]int
	failures    map[string][]error
	hook        func(ctx context.Context, method string)
	inFlight    int
	maxInFlight int
}

func NewLedger(programID solana.PublicKey, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{
		ProgramID: programID,
		clock:     clock,
		accounts:  make(map[solana.PublicKey][]byte),
		txs:       make(map[solana.Signature]*rpc.TransactionDetail),
		calls:     make(map[string]int),
		failures:  make(map[string][]error),
		blockhash: solana.HashFromBytes(bytes.Repeat([]byte{7}, 32)),
	}
}

func (l *Ledger) PutAccount(addr solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[addr] = append([]byte(nil), data...)
}

func (l *Ledger) DeleteAccount(addr solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, addr)
}

func (l *Ledger) Account(addr solana.PublicKey) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.accounts[addr]
	return append([]byte(nil), d...), ok
}

// FailNext makes the next len(errs) calls of method fail with errs in order.
func (l *Ledger) FailNext(method string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[method] = append(l.failures[method], errs...)
}

// SetHook installs fn, called at the start of every request while it counts as in flight.
func (l *Ledger) SetHook(fn func(ctx context.Context, method string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = fn
}

func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

func (l *Ledger) MaxInFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInFlight
}

// Transactions returns submitted transactions in submission order.
func (l *Ledger) Transactions() []*rpc.TransactionDetail {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*rpc.TransactionDetail, 0, len(l.order))
	for _, sig := range l.order {
		out = append(out, l.txs[sig])
	}
	return out
}

// PutTransaction registers a transaction detail as if it had landed earlier.
func (l *Ledger) PutTransaction(d *rpc.TransactionDetail) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.txs[d.Signature]; !ok {
		l.order = append(l.order, d.Signature)
	}
	l.txs[d.Signature] = d
}

func (l *Ledger) begin(ctx context.Context, method string) (func(), error) {
	l.mu.Lock()
	l.calls[method]++
	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
	var injected error
	if q := l.failures[method]; len(q) > 0 {
		injected = q[0]
		l.failures[method] = q[1:]
	}
	hook := l.hook
	l.mu.Unlock()

	end := func() {
		l.mu.Lock()
		l.inFlight--
		l.mu.Unlock()
	}
	if hook != nil {
		hook(ctx, method)
	}
	if injected == nil {
		injected = ctx.Err()
	}
	if injected != nil {
		end()
		return nil, injected
	}
	return end, nil
}

func (l *Ledger) GetAccountInfo(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	end, err := l.begin(ctx, MethodGetAccountInfo)
	if err != nil {
		return nil, err
	}
	defer end()

	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.accounts[addr]
	if !ok {
		return nil, rpc.ErrAccountNotFound
	}
	return append([]byte(nil), d...), nil
}

func (l *Ledger) GetMultipleAccounts(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error) {
	end, err := l.begin(ctx, MethodGetMultipleAccounts)
	if err != nil {
		return nil, err
	}
	defer end()

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		if d, ok := l.accounts[a]; ok {
			out[i] = append([]byte(nil), d...)
		}
	}
	return out, nil
}

func matches(data []byte, filters []rpc.Filter) bool {
	for _, f := range filters {
		if f.DataSize > 0 {
			if uint64(len(data)) != f.DataSize {
				return false
			}
			continue
		}
		end := f.Offset + uint64(len(f.Bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}

func (l *Ledger) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.Filter) ([]rpc.KeyedAccount, error) {
	end, err := l.begin(ctx, MethodGetProgramAccounts)
	if err != nil {
		return nil, err
	}
	defer end()

	if !program.Equals(l.ProgramID) {
		return []rpc.KeyedAccount{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]rpc.KeyedAccount, 0)
	for addr, data := range l.accounts {
		if matches(data, filters) {
			out = append(out, rpc.KeyedAccount{Address: addr, Data: append([]byte(nil), data...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0 })
	return out, nil
}

func (l *Ledger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	end, err := l.begin(ctx, MethodGetLatestBlockhash)
	if err != nil {
		return solana.Hash{}, err
	}
	defer end()
	return l.blockhash, nil
}

func (l *Ledger) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	end, err := l.begin(ctx, MethodSendRawTransaction)
	if err != nil {
		return solana.Signature{}, err
	}
	defer end()

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("decode transaction: %w", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("signature verification failed: %w", err)
	}
	sig := tx.Signatures[0]

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.txs[sig]; dup {
		return sig, nil
	}
	l.slot++
	detail := &rpc.TransactionDetail{
		Signature: sig,
		Slot:      l.slot,
		BlockTime: l.clock.Now().Unix(),
		Raw:       append([]byte(nil), raw...),
	}
	if err := l.execute(tx); err != nil {
		detail.Failed = true
	}
	l.txs[sig] = detail
	l.order = append(l.order, sig)
	return sig, nil
}

func (l *Ledger) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	end, err := l.begin(ctx, MethodConfirmTransaction)
	if err != nil {
		return err
	}
	defer end()

	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.txs[sig]
	if !ok {
		return rpc.ErrTransactionNotFound
	}
	if d.Failed {
		return fmt.Errorf("%w: %s", rpc.ErrTransactionFailed, sig)
	}
	return nil
}

func (l *Ledger) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.TransactionDetail, error) {
	end, err := l.begin(ctx, MethodGetTransaction)
	if err != nil {
		return nil, err
	}
	defer end()

	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.txs[sig]
	if !ok {
		return nil, rpc.ErrTransactionNotFound
	}
	cp := *d
	return &cp, nil
}

var errProgram = errors.New("program error")
