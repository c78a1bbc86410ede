package bungee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
	"github.com/ggonzalez94/bungee-cli/internal/httpx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(httpx.New(5*time.Second, 0), srv.URL, "", "")
	return client, srv
}

func TestGetQuoteParsesNativeFlow(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("inputAmount") != "2000000000000000" {
			t.Errorf("unexpected inputAmount: %s", r.URL.Query().Get("inputAmount"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"result": {
				"originChainId": 8453,
				"destinationChainId": 10,
				"input": {"token": {"chainId": 8453, "address": "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", "symbol": "ETH", "decimals": 18}, "amount": "2000000000000000"},
				"autoRoute": {
					"quoteId": "q-native-1",
					"requestType": "SINGLE_OUTPUT_REQUEST",
					"output": {"token": {"chainId": 10, "symbol": "USDC", "decimals": 6}, "amount": "5000000"},
					"estimatedTime": 30,
					"txData": {"to": "0x2222222222222222222222222222222222222222", "data": "0xdeadbeef", "value": "0x71afd498d0000", "chainId": 8453}
				}
			}
		}`))
	})

	quote, err := client.GetQuote(context.Background(), QuoteRequest{
		UserAddress:        "0x1111111111111111111111111111111111111111",
		ReceiverAddress:    "0x1111111111111111111111111111111111111111",
		OriginChainID:      8453,
		DestinationChainID: 10,
		InputToken:         "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE",
		OutputToken:        "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		InputAmount:        "2000000000000000",
	})
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if quote.FlowKind != FlowNativeTransfer {
		t.Fatalf("expected native flow, got %s", quote.FlowKind)
	}
	if quote.Signed != nil || quote.Native == nil {
		t.Fatal("expected only the native payload to be present")
	}
	if quote.Native.Value != "2000000000000000" {
		t.Fatalf("expected hex value normalized to decimal, got %s", quote.Native.Value)
	}
	if quote.QuoteID != "q-native-1" || quote.OutputAmount != "5000000" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestGetQuoteParsesSignedFlow(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"result": {
				"originChainId": 8453,
				"destinationChainId": 8453,
				"input": {"token": {"chainId": 8453, "address": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "symbol": "USDC", "decimals": 6}, "amount": "1000000"},
				"autoRoute": {
					"quoteId": "q-signed-1",
					"requestType": "SINGLE_OUTPUT_REQUEST",
					"output": {"token": {"chainId": 8453, "symbol": "WETH", "decimals": 18}, "amount": "300000000000000"},
					"signTypedData": {
						"domain": {"name": "Permit2", "verifyingContract": "0x000000000022D473030F116dDEE9F6B43aC78BA3"},
						"types": {},
						"message": {"permitted": {"token": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "amount": "1000000"}}
					},
					"approvalData": {"tokenAddress": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "spenderAddress": "0x0000000000000000000000000000000000000000", "amount": "1000000"}
				}
			}
		}`))
	})

	quote, err := client.GetQuote(context.Background(), QuoteRequest{OriginChainID: 8453, DestinationChainID: 8453, InputAmount: "1000000"})
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if quote.FlowKind != FlowSignedTransfer {
		t.Fatalf("expected signed flow, got %s", quote.FlowKind)
	}
	if quote.Native != nil || quote.Signed == nil {
		t.Fatal("expected only the signed payload to be present")
	}
	if quote.Signed.Approval == nil || quote.Signed.Approval.Amount != "1000000" {
		t.Fatalf("unexpected approval descriptor: %+v", quote.Signed.Approval)
	}
	var witness map[string]any
	if err := json.Unmarshal(quote.Signed.Witness, &witness); err != nil {
		t.Fatalf("witness not an object: %v", err)
	}
	if _, ok := witness["permitted"]; !ok {
		t.Fatalf("witness missing permitted: %s", quote.Signed.Witness)
	}
}

func TestGetQuoteRejectsAmbiguousPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"result": {
				"originChainId": 1,
				"destinationChainId": 1,
				"input": {"token": {"chainId": 1}, "amount": "1"},
				"autoRoute": {
					"quoteId": "q-bad",
					"txData": {"to": "0x2222222222222222222222222222222222222222", "value": "1"},
					"signTypedData": {"message": {}}
				}
			}
		}`))
	})

	_, err := client.GetQuote(context.Background(), QuoteRequest{})
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetQuoteSurfacesBackendMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error": {"message": "no routes found"}}`))
	})

	_, err := client.GetQuote(context.Background(), QuoteRequest{})
	if err == nil || !strings.Contains(err.Error(), "no routes found") {
		t.Fatalf("expected remote message, got %v", err)
	}
}

func TestSearchTokensFlatList(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "usdc" {
			t.Errorf("unexpected query: %s", r.URL.Query().Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "result": [{"chainId": 8453, "symbol": "USDC", "decimals": 6, "isVerified": true}]}`))
	})

	tokens, err := client.SearchTokens(context.Background(), "usdc")
	if err != nil {
		t.Fatalf("SearchTokens failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Symbol != "USDC" || !tokens[0].Verified {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
}

func TestSearchTokensGroupedMap(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "result": {"8453": [{"symbol": "USDC", "decimals": 6}], "10": [{"symbol": "USDC", "decimals": 6}]}}`))
	})

	tokens, err := client.SearchTokens(context.Background(), "usdc")
	if err != nil {
		t.Fatalf("SearchTokens failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected grouped map flattened to 2 tokens, got %d", len(tokens))
	}
	chains := map[int64]bool{}
	for _, token := range tokens {
		chains[token.ChainID] = true
	}
	if !chains[8453] || !chains[10] {
		t.Fatalf("expected chain ids filled from map keys, got %+v", tokens)
	}
}

func TestSubmitSignedRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["quoteId"] != "q-1" || body["requestType"] != "SINGLE_OUTPUT_REQUEST" {
			t.Errorf("unexpected body: %+v", body)
		}
		if _, ok := body["request"].(map[string]any); !ok {
			t.Errorf("expected witness object, got %+v", body["request"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "result": {"requestHash": "0xabc123"}}`))
	})

	hash, err := client.SubmitSignedRequest(context.Background(), "SINGLE_OUTPUT_REQUEST", json.RawMessage(`{"permitted": {}}`), "0xsig", "q-1")
	if err != nil {
		t.Fatalf("SubmitSignedRequest failed: %v", err)
	}
	if hash != "0xabc123" {
		t.Fatalf("unexpected hash: %s", hash)
	}
}

func TestSubmitSignedRequestRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error": {"message": "signature expired"}}`))
	})

	_, err := client.SubmitSignedRequest(context.Background(), "SINGLE_OUTPUT_REQUEST", json.RawMessage(`{}`), "0xsig", "q-1")
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeSubmission {
		t.Fatalf("expected submission error, got %v", err)
	}
	if !strings.Contains(err.Error(), "signature expired") {
		t.Fatalf("expected remote message verbatim, got %v", err)
	}
}

func TestSubmitSignedRequestMissingHash(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "result": {}}`))
	})

	_, err := client.SubmitSignedRequest(context.Background(), "SINGLE_OUTPUT_REQUEST", json.RawMessage(`{}`), "0xsig", "q-1")
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeSubmission {
		t.Fatalf("expected submission error for missing hash, got %v", err)
	}
}

func TestGetStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("requestHash") != "0xabc" {
			t.Errorf("unexpected requestHash: %s", r.URL.Query().Get("requestHash"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "result": [{"bungeeStatusCode": 3, "originData": {"txHash": "0xorigin"}, "destinationData": {"txHash": "0xdest"}}]}`))
	})

	status, err := client.GetStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Code != StatusCompleted || status.DestinationTxHash != "0xdest" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestGetStatusEmptyResultIsPending(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "result": []}`))
	})

	status, err := client.GetStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Code != StatusPending {
		t.Fatalf("expected pending for empty result, got %d", status.Code)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, code := range []int{StatusCompleted, StatusCompletedPartial, StatusExpired, StatusCancelled, StatusRefunded} {
		if !StatusTerminal(code) {
			t.Fatalf("expected code %d terminal", code)
		}
	}
	for _, code := range []int{StatusPending, StatusInProgress} {
		if StatusTerminal(code) {
			t.Fatalf("expected code %d non-terminal", code)
		}
	}
}
