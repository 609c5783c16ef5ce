package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

var (
	ErrNoWallet     = errors.New("no wallet connected")
	ErrUnsigned     = errors.New("transaction not signed")
	ErrConfirmation = errors.New("transaction confirmation failed")
)

// Ledger is the write side of the access layer; *rpc.Client implements it.
type Ledger interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Submit(ctx context.Context, raw []byte) (*rpc.Pending, error)
	Invalidate(ctx context.Context, kinds ...rpc.Kind)
}

// Publisher 负责 取 blockhash → 组装 → 签名 → 提交 → 确认
type Publisher struct {
	ledger Ledger
	signer Signer
}

func NewPublisher(ledger Ledger, signer Signer) *Publisher {
	return &Publisher{ledger: ledger, signer: signer}
}

// Address returns the connected wallet's address or ErrNoWallet.
func (p *Publisher) Address() (solana.PublicKey, error) {
	if p.signer == nil {
		return solana.PublicKey{}, ErrNoWallet
	}
	addr, ok := p.signer.CurrentAddress()
	if !ok {
		return solana.PublicKey{}, ErrNoWallet
	}
	return addr, nil
}

// Publish 提交并确认一笔交易；一旦提交成功，无论确认结果如何都会让 kinds 的缓存失效
func (p *Publisher) Publish(ctx context.Context, kinds []rpc.Kind, ixs ...solana.Instruction) (solana.Signature, error) {
	payer, err := p.Address()
	if err != nil {
		return solana.Signature{}, err
	}
	hash, err := p.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(ixs, hash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if err := p.signer.Sign(ctx, tx); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrUnsigned, err)
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return solana.Signature{}, ErrUnsigned
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}

	pending, err := p.ledger.Submit(ctx, raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submit transaction: %w", err)
	}
	defer p.ledger.Invalidate(context.WithoutCancel(ctx), kinds...)

	if err := pending.Confirm(ctx); err != nil {
		logger.Warn("transaction not confirmed",
			zap.String("signature", pending.Signature.String()),
			zap.Error(err),
		)
		return pending.Signature, fmt.Errorf("%w: %s: %w", ErrConfirmation, pending.Signature, err)
	}
	logger.Info("transaction confirmed", zap.String("signature", pending.Signature.String()))
	return pending.Signature, nil
}
