package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/registry"
	"github.com/ggonzalez94/bungee-cli/internal/signer"
)

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

type ApprovalResult struct {
	Token     string
	Spender   string
	Required  *big.Int
	Allowance *big.Int
	TxHash    string
	Skipped   bool
}

// EnsureApproval guarantees the spender can pull the required amount from
// the owner's token balance. The common case for repeat swaps is an already
// sufficient allowance, which returns without any transaction or gas spend.
// Otherwise the approve call is simulated first so a contract-level revert
// surfaces before gas is spent, then sent and confirmed.
func EnsureApproval(ctx context.Context, client ChainBackend, txSigner signer.Signer, desc bungee.ApprovalDescriptor, opts ExecuteOptions) (ApprovalResult, error) {
	required, ok := new(big.Int).SetString(strings.TrimSpace(desc.Amount), 10)
	if !ok || required.Sign() < 0 {
		return ApprovalResult{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid approval amount %q", desc.Amount))
	}
	spender := common.HexToAddress(registry.ResolveSpender(desc.SpenderAddress))
	token := common.HexToAddress(desc.TokenAddress)
	owner := txSigner.Address()

	result := ApprovalResult{
		Token:    token.Hex(),
		Spender:  spender.Hex(),
		Required: required,
	}

	allowance, err := readAllowance(ctx, client, token, owner, spender)
	if err != nil {
		return ApprovalResult{}, err
	}
	result.Allowance = allowance
	if allowance.Cmp(required) >= 0 {
		result.Skipped = true
		return result, nil
	}

	approveData, err := erc20ABI.Pack("approve", spender, required)
	if err != nil {
		return ApprovalResult{}, clierr.Wrap(clierr.CodeInternal, "encode approve call", err)
	}
	msg := ethereum.CallMsg{From: owner, To: &token, Data: approveData}

	if _, err := client.CallContract(ctx, msg, nil); err != nil {
		return ApprovalResult{}, clierr.New(clierr.CodeApprovalSim, fmt.Sprintf("approval would fail: %s", revertReason(err)))
	}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return ApprovalResult{}, clierr.New(clierr.CodeApprovalSim, fmt.Sprintf("approval gas estimation failed: %s", revertReason(err)))
	}
	gasLimit = uint64(float64(gasLimit) * opts.GasMultiplier)

	hash, err := sendAndConfirm(ctx, client, txSigner, token, big.NewInt(0), approveData, gasLimit, opts)
	if err != nil {
		return ApprovalResult{}, err
	}
	result.TxHash = hash.Hex()
	return result, nil
}

func readAllowance(ctx context.Context, client ChainBackend, token, owner, spender common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode allowance call", err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: callData}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	values, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode allowance", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "allowance is not an integer")
	}
	return allowance, nil
}
