// Package signer holds the key that authorizes transactions, permits and
// off-chain orders on EVM chains.
package signer

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Signer signs transactions, personal messages and EIP-712 payloads with one key.
// Message signatures are 65 bytes with V in {27, 28}.
type Signer interface {
	// Sign signs data as an EIP-191 personal message.
	Sign(data []byte) ([]byte, error)

	// SignTypedData hashes data according to EIP-712 and signs the digest.
	//
	// Parameters:
	// - data: the typed data, including its EIP712Domain type.
	//
	// Returns:
	// - []byte: the signature.
	// - error: an error if the typed data cannot be hashed.
	SignTypedData(data apitypes.TypedData) ([]byte, error)

	// SignTx signs tx for chainID with the latest signer the chain accepts.
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)

	Address() common.Address
}

type signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a signer for privateKey.
func NewSigner(privateKey *ecdsa.PrivateKey) (Signer, error) {
	if privateKey == nil {
		return nil, errors.New("private key is nil")
	}
	return &signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewSignerFromHex parses a hex encoded private key, with or without 0x prefix.
func NewSignerFromHex(key string) (Signer, error) {
	key = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(key), "0x"), "0X")
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return NewSigner(privateKey)
}

func (s *signer) Sign(data []byte) ([]byte, error) {
	return s.signDigest(accounts.TextHash(data))
}

func (s *signer) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to hash typed data %s", data.PrimaryType)
	}
	return s.signDigest(digest)
}

func (s *signer) signDigest(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign digest")
	}
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

func (s *signer) Address() common.Address {
	return s.address
}

func (s *signer) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required to sign a transaction")
	}

	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign transaction with nonce %d", tx.Nonce())
	}
	return signedTx, nil
}
