package types

import (
	"math/big"
	"time"
)

// TxRequest is a ready-to-sign transaction request supplied by the routing service.
// Gas and fee fields are opaque to the execution engine: when present they are used
// as-is, when absent the chain backend fills them in.
//
// Fields:
// - ChainID: the chain the request targets.
// - From: the sending account.
// - To: the target contract or account.
// - Data: the calldata.
// - Value: the native value to send, nil means zero.
// - GasLimit: the gas limit, zero means estimate.
// - GasPrice: the legacy gas price.
// - MaxFeePerGas: the EIP-1559 fee cap.
// - MaxPriorityFeePerGas: the EIP-1559 tip cap.
// - SerializedTx: a base64 wire-format transaction for chains where the routing
//   service returns a fully built transaction (Solana).
type TxRequest struct {
	ChainID              uint64   `json:"chainId"`
	From                 string   `json:"from,omitempty"`
	To                   string   `json:"to,omitempty"`
	Data                 []byte   `json:"data,omitempty"`
	Value                *big.Int `json:"value,omitempty"`
	GasLimit             uint64   `json:"gasLimit,omitempty"`
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
	SerializedTx         string   `json:"serializedTx,omitempty"`
}

// IsEmpty reports whether the request carries nothing that could be submitted.
func (r *TxRequest) IsEmpty() bool {
	return r == nil || (r.To == "" && r.SerializedTx == "")
}

// TransactionDetails is the persisted record of one submitted operation.
// The record is created on submission and afterwards only its status (and,
// for sped-up transactions, its hash) changes. A bridge record stays Pending
// with SendConfirmed set once its source-chain transaction lands, its final
// status comes from the settlement of the transfer.
type TransactionDetails struct {
	ID            string            `json:"id"`
	ChainID       uint64            `json:"chainId"`
	From          string            `json:"from,omitempty"`
	Hash          string            `json:"hash,omitempty"`
	OrderHash     string            `json:"orderHash,omitempty"`
	Nonce         uint64            `json:"nonce"`
	Status        TransactionStatus `json:"status"`
	Routing       Routing           `json:"routing"`
	Type          TransactionType   `json:"type"`
	SendConfirmed bool              `json:"sendConfirmed,omitempty"`
	AddedTime     time.Time         `json:"addedTime"`
	UpdatedTime   time.Time         `json:"updatedTime"`
}

// Clone returns a copy of the record that shares no memory with the original.
func (d *TransactionDetails) Clone() *TransactionDetails {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
