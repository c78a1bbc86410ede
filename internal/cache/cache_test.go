package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/bungee-cli/internal/model"
)

func TestCacheSetGetFreshAndStale(t *testing.T) {
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	defer store.Close()

	if err := store.Set("k1", []byte(`{"v":1}`), 1*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	res, err := store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	time.Sleep(1200 * time.Millisecond)
	res, err = store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.TooStale {
		t.Fatalf("expected stale within budget, got %+v", res)
	}
}

func TestCacheTooStale(t *testing.T) {
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	defer store.Close()

	if err := store.Set("k2", []byte(`{"v":2}`), 1*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(1300 * time.Millisecond)
	res, err := store.Get("k2", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.TooStale {
		t.Fatalf("expected too stale, got %+v", res)
	}
}

func TestCacheRoundTripsCommandPayloads(t *testing.T) {
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	defer store.Close()

	// Token search results cache for 60s per resolver policy.
	tokens := []model.TokenView{
		{ChainID: 8453, Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6, IsVerified: true, IsShortlist: true},
		{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, IsVerified: true},
	}
	payload, err := json.Marshal(tokens)
	if err != nil {
		t.Fatalf("marshal tokens: %v", err)
	}
	if err := store.Set("tokens-search-usdc", payload, 60*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	res, err := store.Get("tokens-search-usdc", 5*time.Minute)
	if err != nil || !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got res=%+v err=%v", res, err)
	}
	var decoded []model.TokenView
	if err := json.Unmarshal(res.Value, &decoded); err != nil {
		t.Fatalf("unmarshal cached tokens: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Symbol != "USDC" || !decoded[0].IsShortlist {
		t.Fatalf("cached token payload corrupted: %+v", decoded)
	}

	// Quote views cache on a shorter TTL; base-unit amounts are strings and
	// must survive the round trip without numeric coercion.
	quote := model.QuoteView{
		QuoteID:     "quote-cache-1",
		FlowKind:    "native_transfer",
		FromChainID: 8453,
		ToChainID:   42161,
		Input:       model.AmountInfo{AmountBaseUnits: "1000000000000000000", AmountDecimal: "1", Decimals: 18},
		MinOut:      model.AmountInfo{AmountBaseUnits: "997000000000000000", AmountDecimal: "0.997", Decimals: 18},
	}
	payload, err = json.Marshal(quote)
	if err != nil {
		t.Fatalf("marshal quote: %v", err)
	}
	if err := store.Set("swap-quote-key", payload, 15*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err = store.Get("swap-quote-key", 5*time.Minute)
	if err != nil || !res.Hit {
		t.Fatalf("expected quote hit, got res=%+v err=%v", res, err)
	}
	var cachedQuote model.QuoteView
	if err := json.Unmarshal(res.Value, &cachedQuote); err != nil {
		t.Fatalf("unmarshal cached quote: %v", err)
	}
	if cachedQuote.Input.AmountBaseUnits != "1000000000000000000" || cachedQuote.MinOut.AmountBaseUnits != "997000000000000000" {
		t.Fatalf("base-unit strings corrupted: %+v", cachedQuote)
	}

	// Re-quoting overwrites in place; the reader must see the newer route.
	quote.MinOut.AmountBaseUnits = "998000000000000000"
	payload, err = json.Marshal(quote)
	if err != nil {
		t.Fatalf("marshal updated quote: %v", err)
	}
	if err := store.Set("swap-quote-key", payload, 15*time.Second); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	res, err = store.Get("swap-quote-key", 5*time.Minute)
	if err != nil || !res.Hit {
		t.Fatalf("expected hit after overwrite, got res=%+v err=%v", res, err)
	}
	if err := json.Unmarshal(res.Value, &cachedQuote); err != nil {
		t.Fatalf("unmarshal overwritten quote: %v", err)
	}
	if cachedQuote.MinOut.AmountBaseUnits != "998000000000000000" {
		t.Fatalf("expected overwritten route, got %+v", cachedQuote)
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 8
	const iterations = 25

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(key, time.Minute)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}
