package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ggonzalez94/bungee-cli/internal/model"
	"github.com/ggonzalez94/bungee-cli/internal/registry"
)

type commandEnvelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Meta     struct {
		Command   string                 `json:"command"`
		Cache     model.CacheStatus      `json:"cache"`
		Providers []model.ProviderStatus `json:"providers"`
	} `json:"meta"`
}

func newCommandTestRunner(t *testing.T, handler http.Handler) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tmp := t.TempDir()
	t.Setenv("BUNGEE_BASE_URL", server.URL)
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("XDG_CACHE_HOME", tmp)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return NewRunnerWithWriters(stdout, stderr), stdout, stderr
}

func decodeCommandEnvelope(t *testing.T, buf *bytes.Buffer) commandEnvelope {
	t.Helper()
	var env commandEnvelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope failed: %v output=%s", err, buf.String())
	}
	return env
}

func searchResponse() map[string]any {
	return map[string]any{
		"success": true,
		"result": []map[string]any{
			{
				"chainId": int64(8453), "address": "0x1111111111111111111111111111111111111111",
				"symbol": "USDC", "name": "Fake USDC", "decimals": 6,
				"isVerified": false, "isShortlisted": false,
			},
			{
				"chainId": int64(8453), "address": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				"symbol": "USDC", "name": "USD Coin", "decimals": 6,
				"isVerified": true, "isShortlisted": true,
			},
			{
				"chainId": int64(1), "address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				"symbol": "USDC", "name": "USD Coin", "decimals": 6,
				"isVerified": true, "isShortlisted": false,
			},
		},
	}
}

func searchHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(registry.BackendSearchPath, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got == "" {
			t.Errorf("search request missing q parameter")
		}
		_ = json.NewEncoder(w).Encode(searchResponse())
	})
	return mux
}

func TestTokensSearchCommandRanksAndLimits(t *testing.T) {
	runner, stdout, stderr := newCommandTestRunner(t, searchHandler(t))

	code := runner.Run([]string{"tokens", "search", "--query", "usdc", "--limit", "2"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}

	env := decodeCommandEnvelope(t, stdout)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", stdout.String())
	}
	var views []model.TokenView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decode token views: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 tokens after limit, got %d", len(views))
	}
	if views[0].Address != "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" {
		t.Fatalf("expected shortlisted token ranked first, got %s", views[0].Address)
	}
	if env.Meta.Cache.Status != "write" {
		t.Fatalf("expected cache write on first run, got %+v", env.Meta.Cache)
	}
	if len(env.Meta.Providers) != 1 || env.Meta.Providers[0].Name != "bungee" || env.Meta.Providers[0].Status != "ok" {
		t.Fatalf("unexpected provider metadata: %+v", env.Meta.Providers)
	}
}

func TestTokensSearchCommandServesSecondRunFromCache(t *testing.T) {
	backendCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc(registry.BackendSearchPath, func(w http.ResponseWriter, r *http.Request) {
		backendCalls++
		_ = json.NewEncoder(w).Encode(searchResponse())
	})
	runner, stdout, stderr := newCommandTestRunner(t, mux)

	if code := runner.Run([]string{"tokens", "search", "--query", "usdc"}); code != 0 {
		t.Fatalf("first run failed: exit %d stderr=%s", code, stderr.String())
	}
	stdout.Reset()
	if code := runner.Run([]string{"tokens", "search", "--query", "usdc"}); code != 0 {
		t.Fatalf("second run failed: exit %d stderr=%s", code, stderr.String())
	}
	if backendCalls != 1 {
		t.Fatalf("expected a single backend call across runs, got %d", backendCalls)
	}

	env := decodeCommandEnvelope(t, stdout)
	if env.Meta.Cache.Status != "hit" || env.Meta.Cache.Stale {
		t.Fatalf("expected fresh cache hit on second run, got %+v", env.Meta.Cache)
	}
}

func TestTokensResolveCommandPicksExactSymbolOnChain(t *testing.T) {
	runner, stdout, stderr := newCommandTestRunner(t, searchHandler(t))

	code := runner.Run([]string{"tokens", "resolve", "--chain", "base", "--token", "USDC"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}

	env := decodeCommandEnvelope(t, stdout)
	var view model.TokenView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode token view: %v", err)
	}
	if view.ChainID != 8453 || view.Symbol != "USDC" {
		t.Fatalf("unexpected resolution: %+v", view)
	}
	if view.Address != "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" {
		t.Fatalf("expected highest-trust listing to win, got %s", view.Address)
	}
	if view.ResolvedBy != "exact_symbol" || view.AssumedMeta {
		t.Fatalf("unexpected resolution provenance: %+v", view)
	}
}

func TestTokensResolveCommandUnknownSymbolIsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(registry.BackendSearchPath, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": []any{}})
	})
	runner, _, stderr := newCommandTestRunner(t, mux)

	code := runner.Run([]string{"tokens", "resolve", "--chain", "base", "--token", "NOPE"})
	if code != 21 {
		t.Fatalf("expected not-found exit code 21, got %d stderr=%s", code, stderr.String())
	}

	env := decodeCommandEnvelope(t, stderr)
	if env.Success {
		t.Fatalf("expected failure envelope, got %s", stderr.String())
	}
}

func TestSwapStatusCommandReportsTerminalStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(registry.BackendStatusPath, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("requestHash"); got != "0xreq-status-1" {
			t.Errorf("unexpected requestHash %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": []map[string]any{
				{
					"bungeeStatusCode": 3,
					"originData":       map[string]any{"txHash": "0xorigin"},
					"destinationData":  map[string]any{"txHash": "0xdest"},
				},
			},
		})
	})
	runner, stdout, stderr := newCommandTestRunner(t, mux)

	code := runner.Run([]string{"swap", "status", "--settlement", "0xreq-status-1"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}

	env := decodeCommandEnvelope(t, stdout)
	var view model.SettlementStatusView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode status view: %v", err)
	}
	if view.Status != "completed" || view.StatusCode != 3 || !view.Terminal {
		t.Fatalf("unexpected settlement status: %+v", view)
	}
	if view.TxHash != "0xdest" {
		t.Fatalf("expected destination tx hash, got %q", view.TxHash)
	}
}

func TestSwapStatusCommandRequiresIdentifier(t *testing.T) {
	runner, _, stderr := newCommandTestRunner(t, http.NewServeMux())

	code := runner.Run([]string{"swap", "status"})
	if code != 2 {
		t.Fatalf("expected usage exit code 2, got %d stderr=%s", code, stderr.String())
	}
}

func TestSwapsListCommandEmptyStore(t *testing.T) {
	runner, stdout, stderr := newCommandTestRunner(t, http.NewServeMux())

	code := runner.Run([]string{"swaps", "list"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}

	env := decodeCommandEnvelope(t, stdout)
	var views []model.SwapRecordView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decode record views: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected empty history, got %d records", len(views))
	}
	if env.Meta.Cache.Status != "bypass" {
		t.Fatalf("history must not touch the cache, got %+v", env.Meta.Cache)
	}
}
