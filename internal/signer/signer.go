package signer

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer is the narrow signing capability the execution core depends on.
// Key storage and decryption live behind the constructors, never here.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	// SignTypedData signs an EIP-712 payload received as raw bytes. The
	// payload is hashed exactly as supplied and never reconstructed.
	SignTypedData(typedData json.RawMessage) (string, error)
}
