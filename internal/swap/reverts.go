package swap

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// errorStringSelector is the 4-byte selector of Error(string).
const errorStringSelector = "08c379a0"

type dataError interface {
	Error() string
	ErrorData() interface{}
}

// revertReason extracts a human-readable reason from an RPC error. When the
// node attached ABI-encoded Error(string) revert data, the contract's own
// message is returned; otherwise the error text passes through verbatim.
func revertReason(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := err.(dataError); ok {
		if reason := decodeRevertData(de.ErrorData()); reason != "" {
			return reason
		}
	}
	return err.Error()
}

func decodeRevertData(data interface{}) string {
	raw, ok := data.(string)
	if !ok {
		return ""
	}
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if !strings.HasPrefix(clean, errorStringSelector) {
		return ""
	}
	buf, err := hex.DecodeString(clean[len(errorStringSelector):])
	if err != nil || len(buf) < 64 {
		return ""
	}
	// offset word, then length word, then the string bytes
	length := new(big.Int).SetBytes(buf[32:64]).Int64()
	if length <= 0 || 64+length > int64(len(buf)) {
		return ""
	}
	return fmt.Sprintf("execution reverted: %s", string(buf[64:64+length]))
}
