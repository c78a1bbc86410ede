package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/id"
	"github.com/ggonzalez94/bungee-cli/internal/model"
	"github.com/ggonzalez94/bungee-cli/internal/tokens"
)

const backendName = "bungee"

func (s *runtimeState) newTokensCommand() *cobra.Command {
	root := &cobra.Command{Use: "tokens", Short: "Token discovery and resolution"}

	var query string
	var limit int
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search tokens by symbol, name, or address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(query) == "" {
				return clierr.New(clierr.CodeUsage, "--query is required")
			}
			req := map[string]any{"query": strings.ToLower(strings.TrimSpace(query)), "limit": limit}
			key := cacheKey(trimRootPath(cmd.CommandPath()), req)
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, 60*time.Second, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				results, err := s.backend.SearchTokens(ctx, query)
				status := []model.ProviderStatus{{Name: backendName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				ranked := tokens.Rank(results)
				if limit > 0 && len(ranked) > limit {
					ranked = ranked[:limit]
				}
				views := make([]model.TokenView, 0, len(ranked))
				for _, token := range ranked {
					views = append(views, tokenView(token))
				}
				return views, status, nil, false, nil
			})
		},
	}
	searchCmd.Flags().StringVar(&query, "query", "", "Search text (symbol, name, or 0x address)")
	searchCmd.Flags().IntVar(&limit, "limit", 20, "Maximum tokens to return")
	root.AddCommand(searchCmd)

	var chainArg string
	var tokenArg string
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a token symbol or address to canonical metadata on a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(chainArg)
			if err != nil {
				return err
			}
			if strings.TrimSpace(tokenArg) == "" {
				return clierr.New(clierr.CodeUsage, "--token is required")
			}
			req := map[string]any{"chain": chain.EVMChainID, "token": strings.ToLower(strings.TrimSpace(tokenArg))}
			key := cacheKey(trimRootPath(cmd.CommandPath()), req)
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, 60*time.Second, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				meta, warnings, err := s.resolver.Resolve(ctx, tokenArg, chain.EVMChainID)
				status := []model.ProviderStatus{{Name: backendName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, warnings, false, err
				}
				return metadataView(meta), status, warnings, false, nil
			})
		},
	}
	resolveCmd.Flags().StringVar(&chainArg, "chain", "", "Chain identifier (slug, numeric id, or CAIP-2)")
	resolveCmd.Flags().StringVar(&tokenArg, "token", "", "Token symbol or 0x address")
	_ = resolveCmd.MarkFlagRequired("chain")
	root.AddCommand(resolveCmd)

	return root
}

func tokenView(token bungee.Token) model.TokenView {
	return model.TokenView{
		ChainID:     token.ChainID,
		Address:     token.Address,
		Symbol:      token.Symbol,
		Name:        token.Name,
		Decimals:    token.Decimals,
		LogoURI:     token.LogoURI,
		IsVerified:  token.Verified,
		IsShortlist: token.Shortlisted,
	}
}

func metadataView(meta tokens.Metadata) model.TokenView {
	return model.TokenView{
		ChainID:     meta.ChainID,
		Address:     meta.Address,
		Symbol:      meta.Symbol,
		Name:        meta.Name,
		Decimals:    meta.Decimals,
		IsVerified:  meta.Verified,
		IsShortlist: meta.Shortlisted,
		ResolvedBy:  meta.ResolvedBy,
		AssumedMeta: meta.Assumed,
	}
}
