package utils

import (
	"bytes"
	"math/big"
	"strings"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ERC20ABI is the subset of the ERC-20 interface the engine needs.
const ERC20ABI = `[
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// ApproveSelector is the 4-byte selector of approve(address,uint256).
var ApproveSelector = common.FromHex("0x095ea7b3")

// ApproveCall is a decoded approve(address,uint256) call.
type ApproveCall struct {
	Spender common.Address
	Amount  *big.Int
}

// DecodeApprove decodes approve calldata.
//
// Parameters:
// - data: the calldata, selector included.
//
// Returns:
// - *ApproveCall: the decoded spender and amount.
// - error: ErrInvalidApproveCalldata if data is not an approve call.
func DecodeApprove(data []byte) (*ApproveCall, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], ApproveSelector) {
		return nil, errors.Wrap(commonerrors.ErrInvalidApproveCalldata, "unexpected selector")
	}

	tokenAbi, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}

	args, err := tokenAbi.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidApproveCalldata, "failed to unpack arguments: %v", err)
	}

	spender, ok := args[0].(common.Address)
	if !ok {
		return nil, errors.Wrap(commonerrors.ErrInvalidApproveCalldata, "spender is not an address")
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return nil, errors.Wrap(commonerrors.ErrInvalidApproveCalldata, "amount is not an integer")
	}

	return &ApproveCall{Spender: spender, Amount: amount}, nil
}

// EncodeApprove packs approve(spender, amount) calldata.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	tokenAbi, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}

	data, err := tokenAbi.Pack("approve", spender, amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack approve data")
	}

	return data, nil
}
