package opcuasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/Nordvei/ifp-edge/internal/adapters/window"
	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// NodeConfig binds one monitored OPC UA node to an (entity, signal) pair,
// e.g. sensor "hvac-east" signal "temp_f".
type NodeConfig struct {
	NodeID   string `yaml:"node_id"`
	SensorID string `yaml:"sensor_id"`
	Signal   string `yaml:"signal"`
	Unit     string `yaml:"unit"`
	Tier     string `yaml:"tier"`
}

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	BufferSize       int           `yaml:"buffer_size"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "ifp-edge"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = time.Second
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 512
	}
	for i := range c.Nodes {
		if c.Nodes[i].SensorID == "" {
			c.Nodes[i].SensorID = c.Nodes[i].NodeID
		}
		if c.Nodes[i].Signal == "" {
			c.Nodes[i].Signal = "value"
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	return nil
}

// Source exposes facility sensors as a metrics source. The OPC UA
// subscription is push-based, so notifications are buffered into bounded
// per-(sensor, signal) rings and Fetch serves windows from the buffer.
// Start must be called before the first Fetch.
type Source struct {
	cfg       Config
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	handleMap map[uint32]NodeConfig

	mu      sync.Mutex
	rings   map[string]*window.Ring
	started bool
}

func New(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		cfg:   cfg,
		rings: make(map[string]*window.Ring),
	}, nil
}

func (s *Source) Name() string { return "opcua" }

func (s *Source) Signals() []domain.Signal {
	seen := make(map[string]bool, len(s.cfg.Nodes))
	var out []domain.Signal
	for _, node := range s.cfg.Nodes {
		if seen[node.Signal] {
			continue
		}
		seen[node.Signal] = true
		out = append(out, domain.Signal{Name: node.Signal, Unit: node.Unit})
	}
	return out
}

func (s *Source) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("%w: opcua source not started", ports.ErrSourceUnavailable)
	}

	seen := make(map[string]bool, len(s.cfg.Nodes))
	var out []domain.Entity
	for _, node := range s.cfg.Nodes {
		if seen[node.SensorID] {
			continue
		}
		seen[node.SensorID] = true
		out = append(out, domain.Entity{Key: node.SensorID, Tier: node.Tier})
	}
	return out, nil
}

// Fetch serves the buffered window for one sensor signal, oldest first.
func (s *Source) Fetch(ctx context.Context, entity domain.Entity, signal domain.Signal, lookback time.Duration) ([]domain.Observation, error) {
	s.mu.Lock()
	ring, ok := s.rings[ringKey(entity.Key, signal.Name)]
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil, fmt.Errorf("%w: opcua source not started", ports.ErrSourceUnavailable)
	}
	if !ok {
		return nil, nil
	}
	return ring.Since(time.Now().Add(-lookback)), nil
}

// Start connects, subscribes to every configured node, and begins buffering
// notifications until Stop.
func (s *Source) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("opcua source already started")
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("%w: opcua connect: %v", ports.ErrSourceUnavailable, err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(s.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: s.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	handleMap := make(map[uint32]NodeConfig, len(s.cfg.Nodes))
	for i, node := range s.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if s.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q rejected", node.NodeID)
		}
		handleMap[handle] = node
	}

	s.mu.Lock()
	s.client = client
	s.sub = sub
	s.cancel = cancel
	s.handleMap = handleMap
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(ctx, notifyCh)
	return nil
}

// Stop tears down the subscription and session.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	sub := s.sub
	client := s.client
	s.started = false
	s.cancel = nil
	s.sub = nil
	s.client = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	s.wg.Wait()
	return err
}

func (s *Source) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				slog.Warn("opcua notification error", "err", notif.Error)
				continue
			}
			s.buffer(notif.Value)
		}
	}
}

func (s *Source) buffer(val interface{}) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		node, ok := s.handleMap[item.ClientHandle]
		if !ok {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			slog.Warn("opcua skipping unsupported value type", "node", node.NodeID)
			continue
		}

		ts := item.Value.ServerTimestamp
		if ts.IsZero() {
			ts = item.Value.SourceTimestamp
		}
		if ts.IsZero() {
			ts = time.Now()
		}

		s.ringFor(node.SensorID, node.Signal).Push(domain.Observation{
			Entity:    node.SensorID,
			Signal:    node.Signal,
			Timestamp: ts,
			Value:     fv,
		})
	}
}

func (s *Source) ringFor(sensor, signal string) *window.Ring {
	k := ringKey(sensor, signal)
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[k]
	if !ok {
		ring = window.NewRing(s.cfg.BufferSize)
		s.rings[k] = ring
	}
	return ring
}

func ringKey(sensor, signal string) string {
	return sensor + "\x1f" + signal
}

func (s *Source) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (s *Source) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.MetricsSource = (*Source)(nil)
