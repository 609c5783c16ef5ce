package service

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer 钱包签名能力；私钥只存在于实现内部
type Signer interface {
	// CurrentAddress returns false when no wallet is connected.
	CurrentAddress() (solana.PublicKey, bool)
	Sign(ctx context.Context, tx *solana.Transaction) error
}

// KeypairSigner signs with a single local ed25519 key.
type KeypairSigner struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key, pub: key.PublicKey()}
}

// LoadKeypairSigner 读取 solana-keygen 生成的 JSON 密钥文件
func LoadKeypairSigner(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return NewKeypairSigner(key), nil
}

func KeypairSignerFromBase58(s string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeypairSigner(key), nil
}

func (s *KeypairSigner) CurrentAddress() (solana.PublicKey, bool) { return s.pub, true }

func (s *KeypairSigner) Sign(_ context.Context, tx *solana.Transaction) error {
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	return err
}
