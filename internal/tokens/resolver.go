package tokens

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/id"
)

const (
	searchCacheTTL = 60 * time.Second

	// decimals assumed when an address is not listed anywhere
	assumedDecimals = 18
)

// Metadata is canonical token metadata. Immutable once resolved and held
// only for the duration of one command.
type Metadata struct {
	ChainID     int64
	Address     string
	Symbol      string
	Name        string
	Decimals    int
	Verified    bool
	Shortlisted bool
	ResolvedBy  string
	Assumed     bool
}

type Searcher interface {
	SearchTokens(ctx context.Context, query string) ([]bungee.Token, error)
}

type cacheEntry struct {
	results   []bungee.Token
	fetchedAt time.Time
}

// Resolver turns a symbol-or-address input plus target chain into canonical
// token metadata. Each Resolver owns its own search cache; there is no
// process-wide shared state. Access is sequential within one command run.
type Resolver struct {
	search Searcher
	cache  map[string]cacheEntry
	ttl    time.Duration
	now    func() time.Time
}

func NewResolver(search Searcher) *Resolver {
	return &Resolver{
		search: search,
		cache:  make(map[string]cacheEntry),
		ttl:    searchCacheTTL,
		now:    time.Now,
	}
}

// Resolve maps input to token metadata on the given chain. Address inputs
// never fail: an unlisted address resolves to a literal entry with assumed
// decimals plus a low-confidence warning. Symbol inputs fail with a
// not-found error when nothing on the chain matches.
func (r *Resolver) Resolve(ctx context.Context, input string, chainID int64) (Metadata, []string, error) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return Metadata{}, nil, clierr.New(clierr.CodeUsage, "token is required")
	}

	results, err := r.Search(ctx, clean)
	if err != nil {
		return Metadata{}, nil, err
	}

	ranked := rankTokens(results)

	if id.IsAddress(clean) {
		return resolveAddress(clean, chainID, ranked)
	}
	return resolveSymbol(clean, chainID, ranked)
}

// Search queries the backend through a per-lowercased-query cache with a
// fixed TTL. A fresh cache hit short-circuits the network call entirely;
// expired entries are evicted lazily here.
func (r *Resolver) Search(ctx context.Context, query string) ([]bungee.Token, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if entry, ok := r.cache[key]; ok {
		if r.now().Sub(entry.fetchedAt) < r.ttl {
			return entry.results, nil
		}
		delete(r.cache, key)
	}

	results, err := r.search.SearchTokens(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache[key] = cacheEntry{results: results, fetchedAt: r.now()}
	return results, nil
}

func resolveAddress(address string, chainID int64, ranked []bungee.Token) (Metadata, []string, error) {
	for _, token := range ranked {
		if token.ChainID == chainID && id.AddressEqual(token.Address, address) {
			return fromToken(token, "exact_address"), nil, nil
		}
	}
	for _, token := range ranked {
		if id.AddressEqual(token.Address, address) {
			meta := fromToken(token, "any_chain_address")
			meta.ChainID = chainID
			meta.Address = address
			meta.Decimals = assumedDecimals
			meta.Assumed = true
			return meta, []string{lowConfidenceWarning(meta)}, nil
		}
	}
	meta := literalAddressMetadata(address, chainID)
	return meta, []string{lowConfidenceWarning(meta)}, nil
}

func resolveSymbol(symbol string, chainID int64, ranked []bungee.Token) (Metadata, []string, error) {
	for _, token := range ranked {
		if token.ChainID == chainID && strings.EqualFold(token.Symbol, symbol) {
			return fromToken(token, "exact_symbol"), nil, nil
		}
	}
	for _, token := range ranked {
		if token.ChainID == chainID {
			meta := fromToken(token, "chain_fallback")
			return meta, []string{fmt.Sprintf("no exact match for %q on chain %d; using %s", symbol, chainID, meta.Symbol)}, nil
		}
	}
	return Metadata{}, nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("token %q not found on chain %d", symbol, chainID))
}

// Rank orders search results by trust score, best first.
func Rank(tokens []bungee.Token) []bungee.Token {
	return rankTokens(tokens)
}

// rankTokens orders results by trust score. Duplicate symbols across
// unverified listings are common, so the highest-trust match must come
// first; the sort is stable to keep backend order for ties.
func rankTokens(tokens []bungee.Token) []bungee.Token {
	ranked := make([]bungee.Token, len(tokens))
	copy(ranked, tokens)
	sort.SliceStable(ranked, func(i, j int) bool {
		return tokenScore(ranked[i]) > tokenScore(ranked[j])
	})
	return ranked
}

func tokenScore(token bungee.Token) int {
	score := 0
	if token.Shortlisted {
		score += 2
	}
	if token.Verified {
		score++
	}
	return score
}

func fromToken(token bungee.Token, resolvedBy string) Metadata {
	return Metadata{
		ChainID:     token.ChainID,
		Address:     token.Address,
		Symbol:      token.Symbol,
		Name:        token.Name,
		Decimals:    token.Decimals,
		Verified:    token.Verified,
		Shortlisted: token.Shortlisted,
		ResolvedBy:  resolvedBy,
	}
}

func literalAddressMetadata(address string, chainID int64) Metadata {
	return Metadata{
		ChainID:    chainID,
		Address:    address,
		Symbol:     address,
		Decimals:   assumedDecimals,
		ResolvedBy: "literal_address",
		Assumed:    true,
	}
}

func lowConfidenceWarning(meta Metadata) string {
	return fmt.Sprintf("token %s is not listed on chain %d; assuming %d decimals", meta.Address, meta.ChainID, meta.Decimals)
}
