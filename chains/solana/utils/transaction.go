package utils

import (
	"encoding/base64"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// DecodeTransaction parses a base64 wire-format transaction.
//
// Parameters:
// - serialized: the base64 encoded transaction.
//
// Returns:
// - *sol.Transaction: the decoded transaction.
// - error: an error if the payload is not base64 or not a transaction.
func DecodeTransaction(serialized string) (*sol.Transaction, error) {
	if serialized == "" {
		return nil, errors.New("empty transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64 transaction")
	}

	tx, err := sol.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode transaction")
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, errors.New("transaction has no accounts")
	}
	return tx, nil
}

// EncodeTransaction serializes a transaction to base64 wire format.
func EncodeTransaction(tx *sol.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "failed to encode transaction")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// FeePayer returns the account that pays for the transaction.
func FeePayer(tx *sol.Transaction) sol.PublicKey {
	return tx.Message.AccountKeys[0]
}
