package walletsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Nordvei/ifp-edge/internal/adapters/window"
	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// SignalName is the single decreasing-monotonic signal this source exposes.
const SignalName = "balance"

// WalletConfig identifies one wallet service endpoint.
type WalletConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Tier string `yaml:"tier"`
}

// Config captures the wallet service endpoints to poll.
type Config struct {
	Wallets    []WalletConfig `yaml:"wallets"`
	Timeout    time.Duration  `yaml:"timeout"`
	Unit       string         `yaml:"unit"`
	BufferSize int            `yaml:"buffer_size"`
}

func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Unit == "" {
		c.Unit = "tokens"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 512
	}
	for i := range c.Wallets {
		if c.Wallets[i].Name == "" {
			c.Wallets[i].Name = c.Wallets[i].URL
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Wallets) == 0 {
		return errors.New("at least one wallet must be configured")
	}
	for _, w := range c.Wallets {
		if w.URL == "" {
			return errors.New("wallet url is required")
		}
	}
	return nil
}

type balancePayload struct {
	Balance       float64 `json:"balance"`
	BalanceWei    string  `json:"balance_wei,omitempty"`
	WalletAddress string  `json:"wallet_address,omitempty"`
}

// Source implements the balance-query port over the wallet service's HTTP
// JSON API. Each Fetch polls the live balance and buffers it into a bounded
// per-wallet ring, so the depletion predictor sees a recent window even
// though the wallet API only serves instantaneous readings.
type Source struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu    sync.Mutex
	rings map[string]*window.Ring
}

func New(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		rings:  make(map[string]*window.Ring),
	}, nil
}

func (s *Source) Name() string { return "wallet" }

func (s *Source) Signals() []domain.Signal {
	return []domain.Signal{{
		Name:         SignalName,
		Unit:         s.cfg.Unit,
		Monotonicity: domain.MonotonicityDecreasing,
	}}
}

func (s *Source) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	out := make([]domain.Entity, 0, len(s.cfg.Wallets))
	for _, w := range s.cfg.Wallets {
		out = append(out, domain.Entity{Key: w.Name, Tier: w.Tier})
	}
	return out, nil
}

// Fetch polls the wallet's current balance, appends it to the ring, and
// returns the buffered window, oldest first.
func (s *Source) Fetch(ctx context.Context, entity domain.Entity, signal domain.Signal, lookback time.Duration) ([]domain.Observation, error) {
	if signal.Name != SignalName {
		return nil, fmt.Errorf("signal %q is not served by the wallet source", signal.Name)
	}
	wallet, ok := s.walletFor(entity.Key)
	if !ok {
		return nil, fmt.Errorf("wallet %q is not configured", entity.Key)
	}

	value, err := s.readBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ring := s.ringFor(entity.Key)
	ring.Push(domain.Observation{
		Entity:    entity.Key,
		Signal:    SignalName,
		Timestamp: now,
		Value:     value,
	})
	return ring.Since(now.Add(-lookback)), nil
}

func (s *Source) readBalance(ctx context.Context, wallet WalletConfig) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wallet.URL+"/api/balance", nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: wallet %s: %v", ports.ErrSourceUnavailable, wallet.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: wallet %s: unexpected status %s", ports.ErrSourceUnavailable, wallet.Name, resp.Status)
	}

	var payload balancePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("wallet %s: decode balance: %w", wallet.Name, err)
	}
	return payload.Balance, nil
}

func (s *Source) walletFor(name string) (WalletConfig, bool) {
	for _, w := range s.cfg.Wallets {
		if w.Name == name {
			return w, true
		}
	}
	return WalletConfig{}, false
}

func (s *Source) ringFor(name string) *window.Ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[name]
	if !ok {
		ring = window.NewRing(s.cfg.BufferSize)
		s.rings[name] = ring
	}
	return ring
}

var _ ports.MetricsSource = (*Source)(nil)
