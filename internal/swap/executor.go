package swap

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/id"
	"github.com/ggonzalez94/bungee-cli/internal/signer"
)

type State string

const (
	StateQuoteReceived    State = "quote_received"
	StateValidating       State = "validating"
	StateEstimatingGas    State = "estimating_gas"
	StateCheckingBalance  State = "checking_balance"
	StateSending          State = "sending"
	StateConfirming       State = "confirming"
	StateCheckingApproval State = "checking_approval"
	StateApproving        State = "approving"
	StateSigning          State = "signing"
	StateSubmitting       State = "submitting"
	StatePolling          State = "polling"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

type ExecuteOptions struct {
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	Poll               PollOptions
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
		Poll:          DefaultPollOptions(),
	}
}

func (o *ExecuteOptions) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 2 * time.Minute
	}
	if o.GasMultiplier <= 1 {
		o.GasMultiplier = 1.2
	}
	o.Poll.normalize()
}

// SettlementBackend is the slice of the quoting service the executor
// needs after a quote is in hand. *bungee.Client satisfies it.
type SettlementBackend interface {
	SubmitSignedRequest(ctx context.Context, requestType string, witness json.RawMessage, signature, quoteID string) (string, error)
	GetStatus(ctx context.Context, requestHash string) (bungee.StatusResult, error)
}

var _ SettlementBackend = (*bungee.Client)(nil)

type Executor struct {
	Client  ChainBackend
	Signer  signer.Signer
	Backend SettlementBackend
	Store   *Store
}

type ExecuteResult struct {
	QuoteID           string
	FlowKind          bungee.FlowKind
	SettlementID      string
	Status            string
	StatusCode        int
	OriginTxHash      string
	DestinationTxHash string
	Approval          *ApprovalResult
	TrackingURL       string
	Attempts          int
}

// Execute runs a validated quote to settlement. A quote id is consumed
// exactly once: re-running a quote that already produced a settlement is
// refused before anything touches the chain.
func (e *Executor) Execute(ctx context.Context, quote bungee.Quote, expectedToken, expectedAmount string, expectedChainID int64, opts ExecuteOptions) (ExecuteResult, error) {
	if e.Client == nil || e.Signer == nil || e.Backend == nil {
		return ExecuteResult{}, clierr.New(clierr.CodeInternal, "executor missing chain client, signer, or backend")
	}
	opts.normalize()

	if e.Store != nil {
		prior, found, err := e.Store.Get(quote.QuoteID)
		if err != nil {
			return ExecuteResult{}, clierr.Wrap(clierr.CodeInternal, "read swap history", err)
		}
		if found && prior.SettlementID != "" {
			return ExecuteResult{}, clierr.New(clierr.CodeValidation, "quote "+quote.QuoteID+" was already executed (settlement "+prior.SettlementID+"); request a fresh quote")
		}
	}

	record := NewRecord(quote, e.Signer.Address().Hex())
	record.Status = string(StateValidating)
	if err := e.persist(&record, true); err != nil {
		return ExecuteResult{}, err
	}

	if err := ValidateQuote(quote, expectedToken, expectedAmount, expectedChainID); err != nil {
		return ExecuteResult{}, e.fail(&record, err)
	}

	result := ExecuteResult{QuoteID: quote.QuoteID, FlowKind: quote.FlowKind}
	var settlementID string
	var err error
	switch quote.FlowKind {
	case bungee.FlowNativeTransfer:
		settlementID, err = e.executeNative(ctx, quote, &record, &result, opts)
	case bungee.FlowSignedTransfer:
		settlementID, err = e.executeSigned(ctx, quote, &record, &result, opts)
	default:
		err = clierr.New(clierr.CodeValidation, "quote carries no executable flow")
	}
	if err != nil {
		return result, e.fail(&record, err)
	}

	result.SettlementID = settlementID
	result.TrackingURL = bungee.TrackingURL(settlementID)
	record.SettlementID = settlementID
	record.Status = string(StatePolling)
	_ = e.persist(&record, false)

	status, err := PollSettlement(ctx, e.Backend.GetStatus, settlementID, opts.Poll)
	result.Attempts = status.Attempts
	result.StatusCode = status.Code
	if status.Name != "" {
		result.Status = status.Name
	}
	if status.OriginTxHash != "" {
		result.OriginTxHash = status.OriginTxHash
		record.OriginTxHash = status.OriginTxHash
	}
	if status.DestinationTxHash != "" {
		result.DestinationTxHash = status.DestinationTxHash
		record.DestinationTxHash = status.DestinationTxHash
	}
	if err != nil {
		return result, e.fail(&record, err)
	}

	record.Status = string(StateCompleted)
	_ = e.persist(&record, false)
	return result, nil
}

func (e *Executor) executeNative(ctx context.Context, quote bungee.Quote, record *Record, result *ExecuteResult, opts ExecuteOptions) (string, error) {
	native := quote.Native
	from := e.Signer.Address()
	to := common.HexToAddress(native.To)
	value, ok := new(big.Int).SetString(native.Value, 10)
	if !ok {
		return "", clierr.New(clierr.CodeValidation, "quote transaction value is not an integer")
	}
	data := common.FromHex(native.Data)

	record.Status = string(StateEstimatingGas)
	_ = e.persist(record, false)
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}
	gasLimit, err := e.Client.EstimateGas(ctx, msg)
	if err != nil {
		if reason := revertReason(err); reason != "" {
			return "", clierr.New(clierr.CodeSimulation, "swap transaction would revert: "+reason)
		}
		return "", clierr.Wrap(clierr.CodeSimulation, "estimate swap gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * opts.GasMultiplier)

	record.Status = string(StateCheckingBalance)
	_ = e.persist(record, false)
	tipCap, err := resolveTipCap(ctx, e.Client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return "", err
	}
	header, err := e.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read chain head", err)
	}
	feeCap, err := resolveFeeCap(header.BaseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return "", err
	}
	gasCost := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gasLimit))
	needed := new(big.Int).Add(value, gasCost)
	balance, err := e.Client.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read account balance", err)
	}
	if balance.Cmp(needed) < 0 {
		shortfall := new(big.Int).Sub(needed, balance)
		symbol := id.ChainByID(quote.OriginChainID).NativeSymbol
		return "", clierr.New(clierr.CodeInsufficientFunds,
			"balance short by "+id.FormatDecimal(shortfall.String(), 18)+" "+symbol+" for swap value plus gas")
	}

	record.Status = string(StateSending)
	_ = e.persist(record, false)
	txHash, err := sendAndConfirm(ctx, e.Client, e.Signer, to, value, data, gasLimit, opts)
	if txHash != (common.Hash{}) {
		result.OriginTxHash = txHash.Hex()
		record.OriginTxHash = txHash.Hex()
	}
	if err != nil {
		return "", err
	}

	if quote.SettlementRef != "" {
		return quote.SettlementRef, nil
	}
	return txHash.Hex(), nil
}

func (e *Executor) executeSigned(ctx context.Context, quote bungee.Quote, record *Record, result *ExecuteResult, opts ExecuteOptions) (string, error) {
	signed := quote.Signed
	from := e.Signer.Address()

	// The transfer itself is gasless, but the account must still be funded:
	// a pending approval needs gas, and settlement contracts reject orders
	// from empty accounts.
	balance, err := e.Client.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read account balance", err)
	}
	if balance.Sign() == 0 {
		symbol := id.ChainByID(quote.OriginChainID).NativeSymbol
		return "", clierr.New(clierr.CodeInsufficientFunds, "account holds no "+symbol+"; a funded account is required even for the gasless flow")
	}

	if signed.Approval != nil {
		record.Status = string(StateCheckingApproval)
		_ = e.persist(record, false)
		approval, err := EnsureApproval(ctx, e.Client, e.Signer, *signed.Approval, opts)
		if err != nil {
			return "", err
		}
		result.Approval = &approval
		record.ApprovalTxHash = approval.TxHash
	}

	record.Status = string(StateSigning)
	_ = e.persist(record, false)
	signature, err := e.Signer.SignTypedData(signed.TypedData)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign swap order", err)
	}

	record.Status = string(StateSubmitting)
	_ = e.persist(record, false)
	return e.Backend.SubmitSignedRequest(ctx, quote.RequestType, signed.Witness, signature, quote.QuoteID)
}

// persist writes the record through the store. The first write claims the
// quote id and must succeed; later state updates are best effort.
func (e *Executor) persist(record *Record, required bool) error {
	if e.Store == nil {
		return nil
	}
	record.Touch()
	if err := e.Store.Save(*record); err != nil {
		if required {
			return clierr.Wrap(clierr.CodeInternal, "record swap", err)
		}
	}
	return nil
}

func (e *Executor) fail(record *Record, err error) error {
	record.Status = string(StateFailed)
	record.Error = err.Error()
	_ = e.persist(record, false)
	return err
}
