package walletsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

func TestFetchPollsAndBuffersWindow(t *testing.T) {
	balances := []string{`{"balance": 100.0}`, `{"balance": 90.0}`}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/balance" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(balances[calls]))
		calls++
	}))
	defer srv.Close()

	src, err := New(Config{Wallets: []WalletConfig{{Name: "main", URL: srv.URL}}})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return clock }

	entity := domain.Entity{Key: "main"}
	sig := src.Signals()[0]
	if sig.Monotonicity != domain.MonotonicityDecreasing {
		t.Fatalf("balance signal must be decreasing-monotonic, got %s", sig.Monotonicity)
	}

	obs, err := src.Fetch(context.Background(), entity, sig, time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(obs) != 1 || obs[0].Value != 100 {
		t.Fatalf("expected first poll to return one sample of 100, got %+v", obs)
	}

	clock = clock.Add(30 * time.Minute)
	obs, err = src.Fetch(context.Background(), entity, sig, time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected buffered window of 2, got %d", len(obs))
	}
	if obs[0].Value != 100 || obs[1].Value != 90 {
		t.Fatalf("expected oldest-first window [100 90], got %+v", obs)
	}
}

func TestFetchUnreachableWallet(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	src, err := New(Config{Wallets: []WalletConfig{{Name: "main", URL: srv.URL}}})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	_, err = src.Fetch(context.Background(), domain.Entity{Key: "main"}, src.Signals()[0], time.Hour)
	if !errors.Is(err, ports.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchBadStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src, err := New(Config{Wallets: []WalletConfig{{Name: "main", URL: srv.URL}}})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	_, err = src.Fetch(context.Background(), domain.Entity{Key: "main"}, src.Signals()[0], time.Hour)
	if !errors.Is(err, ports.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestListEntitiesFromConfig(t *testing.T) {
	src, err := New(Config{Wallets: []WalletConfig{
		{Name: "main", URL: "http://wallet-a", Tier: "treasury"},
		{Name: "ops", URL: "http://wallet-b"},
	}})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	entities, err := src.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	if len(entities) != 2 || entities[0].Key != "main" || entities[0].Tier != "treasury" {
		t.Fatalf("unexpected entities: %+v", entities)
	}
}

func TestValidateRequiresWallets(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected validation error with no wallets")
	}
}
