package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// SignTypedData signs an EIP-712 payload with the chain signer.
//
// Parameters:
// - ctx: unused, the signature is computed locally.
// - data: the typed data to sign.
//
// Returns:
// - string: the 0x-prefixed 65-byte signature.
// - error: an error if the signer is not initialized or signing fails.
func (e *evm) SignTypedData(_ context.Context, data apitypes.TypedData) (string, error) {
	signer := e.getSigner()
	if signer == nil {
		return "", errors.New("signer not initialized")
	}

	signature, err := signer.SignTypedData(data)
	if err != nil {
		return "", errors.Wrapf(err, "failed to sign %s", data.PrimaryType)
	}
	return hexutil.Encode(signature), nil
}
