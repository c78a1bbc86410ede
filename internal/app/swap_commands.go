package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/bungee-cli/internal/bungee"
	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/id"
	"github.com/ggonzalez94/bungee-cli/internal/model"
	"github.com/ggonzalez94/bungee-cli/internal/registry"
	"github.com/ggonzalez94/bungee-cli/internal/signer"
	"github.com/ggonzalez94/bungee-cli/internal/swap"
	"github.com/ggonzalez94/bungee-cli/internal/tokens"
)

type swapRequest struct {
	fromChain  id.Chain
	toChain    id.Chain
	fromToken  tokens.Metadata
	toToken    tokens.Metadata
	amountBase string
	warnings   []string
}

func (s *runtimeState) resolveSwapRequest(ctx context.Context, fromChainArg, toChainArg, fromTokenArg, toTokenArg, amountBase, amountDecimal string) (swapRequest, error) {
	fromChain, err := id.ParseChain(fromChainArg)
	if err != nil {
		return swapRequest{}, err
	}
	toChain, err := id.ParseChain(toChainArg)
	if err != nil {
		return swapRequest{}, err
	}

	fromToken, fromWarnings, err := s.resolver.Resolve(ctx, fromTokenArg, fromChain.EVMChainID)
	if err != nil {
		return swapRequest{}, err
	}
	toToken, toWarnings, err := s.resolver.Resolve(ctx, toTokenArg, toChain.EVMChainID)
	if err != nil {
		return swapRequest{}, err
	}

	base, _, err := id.NormalizeAmount(amountBase, amountDecimal, fromToken.Decimals)
	if err != nil {
		return swapRequest{}, err
	}

	warnings := append([]string(nil), fromWarnings...)
	warnings = append(warnings, toWarnings...)
	return swapRequest{
		fromChain:  fromChain,
		toChain:    toChain,
		fromToken:  fromToken,
		toToken:    toToken,
		amountBase: base,
		warnings:   warnings,
	}, nil
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	root := &cobra.Command{Use: "swap", Short: "Cross-chain swap commands"}
	root.AddCommand(s.newSwapQuoteCommand())
	root.AddCommand(s.newSwapRunCommand())
	root.AddCommand(s.newSwapStatusCommand())
	return root
}

func (s *runtimeState) newSwapQuoteCommand() *cobra.Command {
	var fromChainArg, toChainArg, fromTokenArg, toTokenArg string
	var amountBase, amountDecimal string
	var senderArg, receiverArg string
	var feeTaker, feeBps string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a swap route without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !id.IsAddress(senderArg) {
				return clierr.New(clierr.CodeUsage, "--sender must be a 0x address")
			}
			receiver := receiverArg
			if strings.TrimSpace(receiver) == "" {
				receiver = senderArg
			}
			req := map[string]any{
				"from_chain": fromChainArg,
				"to_chain":   toChainArg,
				"from":       strings.ToLower(fromTokenArg),
				"to":         strings.ToLower(toTokenArg),
				"amount":     amountBase,
				"amount_dec": amountDecimal,
				"sender":     strings.ToLower(senderArg),
				"receiver":   strings.ToLower(receiver),
				"fee_taker":  strings.ToLower(feeTaker),
				"fee_bps":    feeBps,
			}
			key := cacheKey(trimRootPath(cmd.CommandPath()), req)
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, 15*time.Second, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				resolved, err := s.resolveSwapRequest(ctx, fromChainArg, toChainArg, fromTokenArg, toTokenArg, amountBase, amountDecimal)
				if err != nil {
					return nil, nil, nil, false, err
				}
				start := time.Now()
				quote, err := s.backend.GetQuote(ctx, bungee.QuoteRequest{
					UserAddress:        senderArg,
					ReceiverAddress:    receiver,
					OriginChainID:      resolved.fromChain.EVMChainID,
					DestinationChainID: resolved.toChain.EVMChainID,
					InputToken:         resolved.fromToken.Address,
					OutputToken:        resolved.toToken.Address,
					InputAmount:        resolved.amountBase,
					FeeTakerAddress:    feeTaker,
					FeeBps:             feeBps,
				})
				status := []model.ProviderStatus{{Name: backendName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, resolved.warnings, false, err
				}
				return s.quoteView(quote), status, resolved.warnings, false, nil
			})
		},
	}
	cmd.Flags().StringVar(&fromChainArg, "from-chain", "", "Origin chain (slug, id, or CAIP-2)")
	cmd.Flags().StringVar(&toChainArg, "to-chain", "", "Destination chain (slug, id, or CAIP-2)")
	cmd.Flags().StringVar(&fromTokenArg, "from-token", "", "Input token symbol or address")
	cmd.Flags().StringVar(&toTokenArg, "to-token", "", "Output token symbol or address")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Input amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Input amount in decimal units")
	cmd.Flags().StringVar(&senderArg, "sender", "", "Sender address (0x)")
	cmd.Flags().StringVar(&receiverArg, "receiver", "", "Receiver address (defaults to sender)")
	cmd.Flags().StringVar(&feeTaker, "fee-taker", "", "Optional integrator fee recipient address")
	cmd.Flags().StringVar(&feeBps, "fee-bps", "", "Optional integrator fee in basis points")
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("to-chain")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("to-token")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func (s *runtimeState) newSwapRunCommand() *cobra.Command {
	var fromChainArg, toChainArg, fromTokenArg, toTokenArg string
	var amountBase, amountDecimal string
	var receiverArg string
	var feeTaker, feeBps string
	var rpcURL, keySource string
	var gasMultiplier float64
	var maxFeeGwei, maxPriorityFeeGwei string
	var stepTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, validate, and execute a swap end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			txSigner, err := signer.NewLocalSignerFromEnv(keySource)
			if err != nil {
				return clierr.Wrap(clierr.CodeSigner, "load signing key", err)
			}
			sender := txSigner.Address().Hex()
			receiver := receiverArg
			if strings.TrimSpace(receiver) == "" {
				receiver = sender
			}

			// Execution spans an approval receipt wait plus up to 50 status
			// polls, so the per-request timeout cannot bound the whole run.
			ctx := context.Background()

			resolved, err := s.resolveSwapRequest(ctx, fromChainArg, toChainArg, fromTokenArg, toTokenArg, amountBase, amountDecimal)
			if err != nil {
				return err
			}
			s.captureCommandDiagnostics(resolved.warnings, nil, false)

			start := time.Now()
			quote, err := s.backend.GetQuote(ctx, bungee.QuoteRequest{
				UserAddress:        sender,
				ReceiverAddress:    receiver,
				OriginChainID:      resolved.fromChain.EVMChainID,
				DestinationChainID: resolved.toChain.EVMChainID,
				InputToken:         resolved.fromToken.Address,
				OutputToken:        resolved.toToken.Address,
				InputAmount:        resolved.amountBase,
				FeeTakerAddress:    feeTaker,
				FeeBps:             feeBps,
			})
			statuses := []model.ProviderStatus{{Name: backendName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
			s.captureCommandDiagnostics(resolved.warnings, statuses, false)
			if err != nil {
				return err
			}

			resolvedRPC, err := registry.ResolveRPCURL(rpcURL, s.settings.RPCOverrides, resolved.fromChain.EVMChainID)
			if err != nil {
				return err
			}
			chainClient, err := swap.DialBackend(ctx, resolvedRPC)
			if err != nil {
				return err
			}
			defer chainClient.Close()

			store, err := swap.OpenStore(s.settings.SwapStorePath, s.settings.SwapLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open swap store", err)
			}
			defer func() { _ = store.Close() }()

			opts := swap.DefaultExecuteOptions()
			if gasMultiplier > 1 {
				opts.GasMultiplier = gasMultiplier
			}
			opts.MaxFeeGwei = maxFeeGwei
			opts.MaxPriorityFeeGwei = maxPriorityFeeGwei
			if stepTimeout > 0 {
				opts.StepTimeout = stepTimeout
			}

			executor := &swap.Executor{Client: chainClient, Signer: txSigner, Backend: s.backend, Store: store}
			submittedAt := s.runner.now().UTC()
			result, err := executor.Execute(ctx, quote, resolved.fromToken.Address, resolved.amountBase, resolved.fromChain.EVMChainID, opts)
			if err != nil {
				return err
			}

			view := model.SwapResultView{
				QuoteID:      result.QuoteID,
				FlowKind:     string(result.FlowKind),
				SettlementID: result.SettlementID,
				Status:       result.Status,
				StatusCode:   result.StatusCode,
				TxHash:       result.OriginTxHash,
				PollAttempts: result.Attempts,
				SubmittedAt:  submittedAt.Format(time.RFC3339),
				SettledAt:    s.runner.now().UTC().Format(time.RFC3339),
			}
			if result.Approval != nil {
				view.Approval = &model.ApprovalView{
					Token:     result.Approval.Token,
					Spender:   result.Approval.Spender,
					Required:  result.Approval.Required.String(),
					Allowance: result.Approval.Allowance.String(),
					TxHash:    result.Approval.TxHash,
					Skipped:   result.Approval.Skipped,
				}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, resolved.warnings, cacheMetaBypass(), statuses, false)
		},
	}
	cmd.Flags().StringVar(&fromChainArg, "from-chain", "", "Origin chain (slug, id, or CAIP-2)")
	cmd.Flags().StringVar(&toChainArg, "to-chain", "", "Destination chain (slug, id, or CAIP-2)")
	cmd.Flags().StringVar(&fromTokenArg, "from-token", "", "Input token symbol or address")
	cmd.Flags().StringVar(&toTokenArg, "to-token", "", "Output token symbol or address")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Input amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Input amount in decimal units")
	cmd.Flags().StringVar(&receiverArg, "receiver", "", "Receiver address (defaults to the signer)")
	cmd.Flags().StringVar(&feeTaker, "fee-taker", "", "Optional integrator fee recipient address")
	cmd.Flags().StringVar(&feeBps, "fee-bps", "", "Optional integrator fee in basis points")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "Origin chain RPC endpoint override")
	cmd.Flags().StringVar(&keySource, "key-source", "auto", "Signing key source (auto|env|file|keystore)")
	cmd.Flags().Float64Var(&gasMultiplier, "gas-multiplier", 0, "Gas limit multiplier applied after estimation")
	cmd.Flags().StringVar(&maxFeeGwei, "max-fee-gwei", "", "Max fee per gas override in gwei")
	cmd.Flags().StringVar(&maxPriorityFeeGwei, "max-priority-fee-gwei", "", "Max priority fee override in gwei")
	cmd.Flags().DurationVar(&stepTimeout, "step-timeout", 0, "Per-transaction confirmation timeout")
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("to-chain")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("to-token")
	return cmd
}

func (s *runtimeState) newSwapStatusCommand() *cobra.Command {
	var settlementArg, quoteArg string
	var wait bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check (or wait for) a settlement's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			settlementID := strings.TrimSpace(settlementArg)
			if settlementID == "" && strings.TrimSpace(quoteArg) == "" {
				return clierr.New(clierr.CodeUsage, "--settlement or --quote is required")
			}

			store, err := swap.OpenStore(s.settings.SwapStorePath, s.settings.SwapLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open swap store", err)
			}
			defer func() { _ = store.Close() }()

			record, recorded := swap.Record{}, false
			if settlementID == "" {
				record, recorded, err = store.Get(strings.TrimSpace(quoteArg))
				if err != nil {
					return err
				}
				if !recorded || record.SettlementID == "" {
					return clierr.New(clierr.CodeNotFound, fmt.Sprintf("no settlement recorded for quote %s", strings.TrimSpace(quoteArg)))
				}
				settlementID = record.SettlementID
			} else {
				record, recorded, err = store.FindBySettlement(settlementID)
				if err != nil {
					return err
				}
			}

			ctx := context.Background()
			var code int
			var txHash string
			if wait {
				status, err := swap.PollSettlement(ctx, s.backend.GetStatus, settlementID, swap.DefaultPollOptions())
				if err != nil {
					return err
				}
				code = status.Code
				txHash = status.DestinationTxHash
			} else {
				reqCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
				defer cancel()
				start := time.Now()
				status, err := s.backend.GetStatus(reqCtx, settlementID)
				s.captureCommandDiagnostics(nil, []model.ProviderStatus{{Name: backendName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}, false)
				if err != nil {
					return err
				}
				code = status.Code
				txHash = status.DestinationTxHash
			}

			if recorded {
				record.Status = bungee.StatusName(code)
				if txHash != "" {
					record.DestinationTxHash = txHash
				}
				record.Touch()
				_ = store.Save(record)
			}

			view := model.SettlementStatusView{
				SettlementID: settlementID,
				Status:       bungee.StatusName(code),
				StatusCode:   code,
				Terminal:     bungee.StatusTerminal(code),
				TxHash:       txHash,
				CheckedAt:    s.runner.now().UTC().Format(time.RFC3339),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass(), s.lastProviders, false)
		},
	}
	cmd.Flags().StringVar(&settlementArg, "settlement", "", "Settlement id (request hash)")
	cmd.Flags().StringVar(&quoteArg, "quote", "", "Quote id of a recorded swap")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until a terminal status")
	return cmd
}

func (s *runtimeState) newSwapsCommand() *cobra.Command {
	root := &cobra.Command{Use: "swaps", Short: "Recorded swap history"}
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent swap records",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			store, err := swap.OpenStore(s.settings.SwapStorePath, s.settings.SwapLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open swap store", err)
			}
			defer func() { _ = store.Close() }()

			records, err := store.List(limit)
			if err != nil {
				return err
			}
			views := make([]model.SwapRecordView, 0, len(records))
			for _, record := range records {
				views = append(views, model.SwapRecordView{
					QuoteID:      record.QuoteID,
					FlowKind:     record.FlowKind,
					FromChainID:  record.FromChainID,
					ToChainID:    record.ToChainID,
					InputAmount:  record.InputAmount,
					SettlementID: record.SettlementID,
					Status:       record.Status,
					CreatedAt:    record.CreatedAt,
					UpdatedAt:    record.UpdatedAt,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass(), nil, false)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")
	root.AddCommand(listCmd)
	return root
}

func (s *runtimeState) quoteView(quote bungee.Quote) model.QuoteView {
	view := model.QuoteView{
		QuoteID:     quote.QuoteID,
		FlowKind:    string(quote.FlowKind),
		FromChainID: quote.OriginChainID,
		ToChainID:   quote.DestinationChainID,
		FromToken:   tokenView(quote.InputToken),
		ToToken:     tokenView(quote.OutputToken),
		Input: model.AmountInfo{
			AmountBaseUnits: quote.InputAmount,
			AmountDecimal:   id.FormatDecimal(quote.InputAmount, quote.InputToken.Decimals),
			Decimals:        quote.InputToken.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: quote.OutputAmount,
			AmountDecimal:   id.FormatDecimal(quote.OutputAmount, quote.OutputToken.Decimals),
			Decimals:        quote.OutputToken.Decimals,
		},
		MinOut: model.AmountInfo{
			AmountBaseUnits: quote.MinOutputAmount,
			AmountDecimal:   id.FormatDecimal(quote.MinOutputAmount, quote.OutputToken.Decimals),
			Decimals:        quote.OutputToken.Decimals,
		},
		SlippageBps:    quote.SlippageBps,
		EstimatedTimeS: quote.EstimatedTimeS,
		FetchedAt:      s.runner.now().UTC().Format(time.RFC3339),
	}
	if quote.Signed != nil && quote.Signed.Approval != nil {
		view.ApprovalTarget = registry.ResolveSpender(quote.Signed.Approval.SpenderAddress)
	}
	return view
}
