package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Well-known development key, never funded on a real network.
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestSigner(t *testing.T) Signer {
	t.Helper()

	s, err := NewSignerFromHex(testKey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func permitTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"PermitSingle": []apitypes.Type{
				{Name: "spender", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "sigDeadline", Type: "uint256"},
			},
		},
		PrimaryType: "PermitSingle",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit2",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: "0x000000000022D473030F116dDEE9F6B43aC78BA3",
		},
		Message: apitypes.TypedDataMessage{
			"spender":     "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD",
			"amount":      "1000000",
			"sigDeadline": "1700000000",
		},
	}
}

func recoverAddress(t *testing.T, digest, signature []byte) common.Address {
	t.Helper()

	sig := make([]byte, len(signature))
	copy(sig, signature)
	sig[64] -= 27

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	return crypto.PubkeyToAddress(*pub)
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	s := newTestSigner(t)
	data := permitTypedData()

	signature, err := s.SignTypedData(data)
	if err != nil {
		t.Fatalf("sign typed data: %v", err)
	}
	if len(signature) != 65 {
		t.Fatalf("signature length = %d, want 65", len(signature))
	}
	if v := signature[64]; v != 27 && v != 28 {
		t.Fatalf("v = %d, want 27 or 28", v)
	}

	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if got := recoverAddress(t, digest, signature); got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}
}

func TestSignTypedDataRejectsUnknownPrimaryType(t *testing.T) {
	data := permitTypedData()
	data.PrimaryType = "Missing"

	if _, err := newTestSigner(t).SignTypedData(data); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSignPersonalMessage(t *testing.T) {
	s := newTestSigner(t)
	message := []byte("swap")

	signature, err := s.Sign(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	digest := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n4swap"))
	if got := recoverAddress(t, digest, signature); got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}
}

func TestSignTx(t *testing.T) {
	s := newTestSigner(t)
	chainID := big.NewInt(1)
	to := common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	})

	signed, err := s.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("sender %s, want %s", from.Hex(), s.Address().Hex())
	}
}

func TestNewSignerFromHexRejectsGarbage(t *testing.T) {
	if _, err := NewSignerFromHex("0xnothex"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSignTxRequiresChainID(t *testing.T) {
	s := newTestSigner(t)
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})

	if _, err := s.SignTx(tx, nil); err == nil {
		t.Fatal("expected an error without chain id")
	}
}
