// Package accounts resolves the signing accounts of a network and maps named
// roles (such as "deployer") onto them.
package accounts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sentinel errors
var (
	ErrInvalidKey    = errors.New("palmdeploy: invalid private key")
	ErrNoSigner      = errors.New("palmdeploy: no signer for address")
	ErrAccountIndex  = errors.New("palmdeploy: account index out of range")
	ErrSigningFailed = errors.New("palmdeploy: signing failed")
)

// KeystorePrefix marks an account entry that points at an encrypted JSON
// keystore file instead of a raw key.
const KeystorePrefix = "keystore:"

// KeystorePasswordEnv holds the password for keystore account entries.
const KeystorePasswordEnv = "PALMDEPLOY_KEYSTORE_PASSWORD"

// Signer signs transactions for a single address.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalSigner signs with an in-memory secp256k1 key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner parses a hex private key, with or without 0x prefix.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewLocalSignerFromKey(key), nil
}

// NewLocalSignerFromKey wraps an existing key.
func NewLocalSignerFromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeystoreSigner decrypts a go-ethereum JSON keystore file.
func NewKeystoreSigner(path, password string) (*LocalSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	k, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt keystore %s: %v", ErrInvalidKey, path, err)
	}
	return NewLocalSignerFromKey(k.PrivateKey), nil
}

// Address returns the signer's address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTx signs tx with the latest signer for chainID.
func (s *LocalSigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return signed, nil
}

// parseAccountEntry turns one configured account entry into a signer.
func parseAccountEntry(entry string) (Signer, error) {
	if path, ok := strings.CutPrefix(entry, KeystorePrefix); ok {
		return NewKeystoreSigner(path, os.Getenv(KeystorePasswordEnv))
	}
	return NewLocalSigner(entry)
}
