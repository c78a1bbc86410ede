package bungee

import (
	"encoding/json"
	"math/big"
	"strings"

	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
)

// FlowKind discriminates the two mutually exclusive execution flows. It is
// fixed once at quote-parse time; downstream code switches on it and never
// probes optional payload fields.
type FlowKind string

const (
	FlowNativeTransfer FlowKind = "native_transfer"
	FlowSignedTransfer FlowKind = "signed_transfer"
)

// Backend settlement status codes as returned in bungeeStatusCode.
const (
	StatusPending          = 1
	StatusInProgress       = 2
	StatusCompleted        = 3
	StatusCompletedPartial = 4
	StatusExpired          = 5
	StatusCancelled        = 6
	StatusRefunded         = 7
)

func StatusName(code int) string {
	switch code {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCompletedPartial:
		return "completed_partial"
	case StatusExpired:
		return "expired"
	case StatusCancelled:
		return "cancelled"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

func StatusTerminal(code int) bool {
	switch code {
	case StatusCompleted, StatusCompletedPartial, StatusExpired, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

type Token struct {
	ChainID     int64  `json:"chainId"`
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    int    `json:"decimals"`
	LogoURI     string `json:"logoURI"`
	Verified    bool   `json:"isVerified"`
	Shortlisted bool   `json:"isShortlisted"`
}

// NativePayload is the pre-built transaction for the direct-transfer flow.
// Value is normalized to a base-10 integer string at parse time.
type NativePayload struct {
	To      string
	Data    string
	Value   string
	ChainID int64
}

// SignedPayload carries the structured-data payload for the gasless flow.
// TypedData is kept as raw bytes and forwarded to the signer untouched;
// Witness is the message object the settlement service requires back.
type SignedPayload struct {
	TypedData json.RawMessage
	Witness   json.RawMessage
	Approval  *ApprovalDescriptor
}

type ApprovalDescriptor struct {
	TokenAddress   string
	SpenderAddress string
	Amount         string
}

type Quote struct {
	QuoteID            string
	RequestType        string
	FlowKind           FlowKind
	OriginChainID      int64
	DestinationChainID int64
	InputToken         Token
	OutputToken        Token
	InputAmount        string
	OutputAmount       string
	MinOutputAmount    string
	SlippageBps        int64
	SettlementRef      string
	EstimatedTimeS     int64
	Native             *NativePayload
	Signed             *SignedPayload
}

// wire shapes

type quoteEnvelope struct {
	Success bool        `json:"success"`
	Result  quoteResult `json:"result"`
	Error   any         `json:"error"`
	Message string      `json:"message"`
}

type quoteResult struct {
	OriginChainID      int64      `json:"originChainId"`
	DestinationChainID int64      `json:"destinationChainId"`
	Input              quoteLeg   `json:"input"`
	AutoRoute          *autoRoute `json:"autoRoute"`
}

type quoteLeg struct {
	Token  Token  `json:"token"`
	Amount string `json:"amount"`
}

type autoRoute struct {
	QuoteID       string          `json:"quoteId"`
	RequestType   string          `json:"requestType"`
	RequestHash   string          `json:"requestHash"`
	Output        quoteLeg        `json:"output"`
	MinOutput     quoteLeg        `json:"minOutputAmount"`
	Slippage      float64         `json:"slippage"`
	EstimatedTime int64           `json:"estimatedTime"`
	TxData        *wireTxData     `json:"txData"`
	SignTypedData json.RawMessage `json:"signTypedData"`
	ApprovalData  *wireApproval   `json:"approvalData"`
}

type wireTxData struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chainId"`
}

type wireApproval struct {
	TokenAddress   string `json:"tokenAddress"`
	SpenderAddress string `json:"spenderAddress"`
	Amount         string `json:"amount"`
	MinimumAmount  string `json:"minimumApprovalAmount"`
}

func parseQuote(resp quoteEnvelope) (Quote, error) {
	route := resp.Result.AutoRoute
	if route == nil {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "quote response missing route")
	}

	quote := Quote{
		QuoteID:            strings.TrimSpace(route.QuoteID),
		RequestType:        strings.TrimSpace(route.RequestType),
		OriginChainID:      resp.Result.OriginChainID,
		DestinationChainID: resp.Result.DestinationChainID,
		InputToken:         resp.Result.Input.Token,
		OutputToken:        route.Output.Token,
		InputAmount:        strings.TrimSpace(resp.Result.Input.Amount),
		OutputAmount:       strings.TrimSpace(route.Output.Amount),
		MinOutputAmount:    strings.TrimSpace(route.MinOutput.Amount),
		SlippageBps:        int64(route.Slippage * 100),
		SettlementRef:      strings.TrimSpace(route.RequestHash),
		EstimatedTimeS:     route.EstimatedTime,
	}
	if quote.QuoteID == "" {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "quote response missing quote id")
	}

	hasTx := route.TxData != nil
	hasTypedData := len(route.SignTypedData) > 0 && string(route.SignTypedData) != "null"
	switch {
	case hasTx && hasTypedData:
		return Quote{}, clierr.New(clierr.CodeValidation, "quote carries both transaction data and typed data")
	case hasTx:
		value, err := normalizeWireAmount(route.TxData.Value)
		if err != nil {
			return Quote{}, clierr.Wrap(clierr.CodeValidation, "quote transaction value", err)
		}
		quote.FlowKind = FlowNativeTransfer
		quote.Native = &NativePayload{
			To:      strings.TrimSpace(route.TxData.To),
			Data:    strings.TrimSpace(route.TxData.Data),
			Value:   value,
			ChainID: route.TxData.ChainID,
		}
	case hasTypedData:
		witness, err := typedDataMessage(route.SignTypedData)
		if err != nil {
			return Quote{}, err
		}
		quote.FlowKind = FlowSignedTransfer
		quote.Signed = &SignedPayload{
			TypedData: route.SignTypedData,
			Witness:   witness,
		}
		if route.ApprovalData != nil {
			amount := strings.TrimSpace(route.ApprovalData.Amount)
			if amount == "" {
				amount = strings.TrimSpace(route.ApprovalData.MinimumAmount)
			}
			quote.Signed.Approval = &ApprovalDescriptor{
				TokenAddress:   strings.TrimSpace(route.ApprovalData.TokenAddress),
				SpenderAddress: strings.TrimSpace(route.ApprovalData.SpenderAddress),
				Amount:         amount,
			}
		}
	default:
		return Quote{}, clierr.New(clierr.CodeValidation, "quote carries neither transaction data nor typed data")
	}

	return quote, nil
}

// typedDataMessage extracts the message object from the raw typed-data
// payload. The bytes are sliced out as-is so the witness sent back at submit
// time matches what was signed.
func typedDataMessage(raw json.RawMessage) (json.RawMessage, error) {
	var probe struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, clierr.Wrap(clierr.CodeValidation, "quote typed data is not an object", err)
	}
	if len(probe.Message) == 0 || string(probe.Message) == "null" {
		return nil, clierr.New(clierr.CodeValidation, "quote typed data missing message")
	}
	return probe.Message, nil
}

// normalizeWireAmount accepts the hex and decimal integer encodings backends
// use interchangeably and returns a base-10 string.
func normalizeWireAmount(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "0", nil
	}
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		value, ok := new(big.Int).SetString(clean[2:], 16)
		if !ok {
			return "", clierr.New(clierr.CodeValidation, "invalid hex amount "+raw)
		}
		return value.String(), nil
	}
	value, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return "", clierr.New(clierr.CodeValidation, "invalid integer amount "+raw)
	}
	return value.String(), nil
}
