package swap

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/id"
	"github.com/ggonzalez94/bungee-cli/internal/registry"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ValidateQuote proves the quote matches what the caller asked for. It must
// run to completion before any signature is produced or transaction sent:
// the quote source is untrusted and a tampered quote must fail here, not
// after funds moved.
func ValidateQuote(quote bungee.Quote, expectedToken, expectedAmount string, expectedChainID int64) error {
	switch quote.FlowKind {
	case bungee.FlowNativeTransfer:
		return validateNative(quote, expectedAmount, expectedChainID)
	case bungee.FlowSignedTransfer:
		return validateSigned(quote, expectedToken, expectedAmount)
	default:
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("unknown quote flow %q", quote.FlowKind))
	}
}

func validateNative(quote bungee.Quote, expectedAmount string, expectedChainID int64) error {
	payload := quote.Native
	if payload == nil {
		return clierr.New(clierr.CodeValidation, "native quote missing transaction payload")
	}
	if !amountsEqual(payload.Value, expectedAmount) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("quote transaction value %s does not match requested amount %s", payload.Value, expectedAmount))
	}
	if payload.To == "" || id.AddressEqual(payload.To, zeroAddress) {
		return clierr.New(clierr.CodeValidation, "quote transaction targets the zero address")
	}
	if payload.ChainID != 0 && payload.ChainID != expectedChainID {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("quote transaction chain %d does not match origin chain %d", payload.ChainID, expectedChainID))
	}
	return nil
}

func validateSigned(quote bungee.Quote, expectedToken, expectedAmount string) error {
	payload := quote.Signed
	if payload == nil {
		return clierr.New(clierr.CodeValidation, "signed quote missing typed data payload")
	}

	var typed struct {
		Domain struct {
			VerifyingContract string `json:"verifyingContract"`
		} `json:"domain"`
		Message struct {
			Permitted *struct {
				Token  string          `json:"token"`
				Amount json.RawMessage `json:"amount"`
			} `json:"permitted"`
		} `json:"message"`
	}
	if err := json.Unmarshal(payload.TypedData, &typed); err != nil {
		return clierr.Wrap(clierr.CodeValidation, "quote typed data unreadable", err)
	}

	if !id.AddressEqual(typed.Domain.VerifyingContract, registry.Permit2Address) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("typed data verifying contract %s is not the canonical permit contract", typed.Domain.VerifyingContract))
	}

	// Some quote shapes omit the permitted sub-object entirely; that is
	// tolerated. A present but mismatching one is fatal.
	if permitted := typed.Message.Permitted; permitted != nil {
		amount := decodeJSONAmount(permitted.Amount)
		if amount != "" && !amountsEqual(amount, expectedAmount) {
			return clierr.New(clierr.CodeValidation, fmt.Sprintf("typed data permits amount %s, requested %s", amount, expectedAmount))
		}
		if permitted.Token != "" && !id.AddressEqual(permitted.Token, expectedToken) {
			return clierr.New(clierr.CodeValidation, fmt.Sprintf("typed data permits token %s, requested %s", permitted.Token, expectedToken))
		}
	}
	return nil
}

// amountsEqual compares two integer amount strings exactly. Anything that
// fails to parse as an integer compares unequal.
func amountsEqual(a, b string) bool {
	left, okA := new(big.Int).SetString(strings.TrimSpace(a), 10)
	right, okB := new(big.Int).SetString(strings.TrimSpace(b), 10)
	if !okA || !okB {
		return false
	}
	return left.Cmp(right) == 0
}

// decodeJSONAmount accepts the string and number encodings backends use for
// permit amounts.
func decodeJSONAmount(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return strings.TrimSpace(string(raw))
}
