package utils

import (
	"math/big"
	"testing"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

func TestDecodeApproveRoundTrip(t *testing.T) {
	spender := common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	amount := big.NewInt(1_000_000)

	data, err := EncodeApprove(spender, amount)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if common.Bytes2Hex(data[:4]) != "095ea7b3" {
		t.Fatalf("unexpected selector %x", data[:4])
	}

	call, err := DecodeApprove(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if call.Spender != spender {
		t.Errorf("spender = %s, want %s", call.Spender.Hex(), spender.Hex())
	}
	if call.Amount.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", call.Amount, amount)
	}
}

func TestDecodeApproveRejectsOtherCalls(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"short":     {0x09, 0x5e},
		"transfer":  common.FromHex("0xa9059cbb0000000000000000000000000000000000000000000000000000000000000001"),
		"truncated": common.FromHex("0x095ea7b3000000000000000000000000"),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeApprove(data)
			if !errors.Is(err, commonerrors.ErrInvalidApproveCalldata) {
				t.Fatalf("expected ErrInvalidApproveCalldata, got %v", err)
			}
		})
	}
}
