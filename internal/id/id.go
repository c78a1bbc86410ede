package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

type Chain struct {
	Name         string
	Slug         string
	CAIP2        string
	EVMChainID   int64
	NativeSymbol string
}

var chainBySlug = map[string]Chain{
	"ethereum":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSymbol: "ETH"},
	"mainnet":   {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSymbol: "ETH"},
	"base":      {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, NativeSymbol: "ETH"},
	"arbitrum":  {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161, NativeSymbol: "ETH"},
	"optimism":  {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10, NativeSymbol: "ETH"},
	"polygon":   {Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137, NativeSymbol: "POL"},
	"avalanche": {Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", EVMChainID: 43114, NativeSymbol: "AVAX"},
	"bsc":       {Name: "BSC", Slug: "bsc", CAIP2: "eip155:56", EVMChainID: 56, NativeSymbol: "BNB"},
	"gnosis":    {Name: "Gnosis", Slug: "gnosis", CAIP2: "eip155:100", EVMChainID: 100, NativeSymbol: "xDAI"},
	"scroll":    {Name: "Scroll", Slug: "scroll", CAIP2: "eip155:534352", EVMChainID: 534352, NativeSymbol: "ETH"},
	"linea":     {Name: "Linea", Slug: "linea", CAIP2: "eip155:59144", EVMChainID: 59144, NativeSymbol: "ETH"},
	"blast":     {Name: "Blast", Slug: "blast", CAIP2: "eip155:81457", EVMChainID: 81457, NativeSymbol: "ETH"},
	"mantle":    {Name: "Mantle", Slug: "mantle", CAIP2: "eip155:5000", EVMChainID: 5000, NativeSymbol: "MNT"},
	"zksync":    {Name: "zkSync Era", Slug: "zksync", CAIP2: "eip155:324", EVMChainID: 324, NativeSymbol: "ETH"},
}

var chainByID = func() map[int64]Chain {
	out := make(map[int64]Chain, len(chainBySlug))
	for _, chain := range chainBySlug {
		out[chain.EVMChainID] = chain
	}
	return out
}()

// ParseChain accepts a slug, a bare numeric chain id, or a CAIP-2 identifier.
// Unknown EVM chain ids are allowed and get a synthetic name with an ETH
// native-symbol fallback.
func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		return chainForID(id), nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil && id > 0 {
		return chainForID(id), nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

func chainForID(id int64) Chain {
	if chain, ok := chainByID[id]; ok {
		return chain
	}
	return Chain{
		Name:         fmt.Sprintf("EVM-%d", id),
		Slug:         fmt.Sprintf("evm-%d", id),
		CAIP2:        fmt.Sprintf("eip155:%d", id),
		EVMChainID:   id,
		NativeSymbol: "ETH",
	}
}

// ChainByID resolves a numeric chain id to the registry entry, synthesizing
// one for unknown ids.
func ChainByID(id int64) Chain {
	return chainForID(id)
}

// IsAddress reports whether the input is a 20-byte hex address literal.
func IsAddress(input string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(input))
}

// AddressEqual compares two EVM addresses case-insensitively.
func AddressEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
