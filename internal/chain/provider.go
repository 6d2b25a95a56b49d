package chain

import (
	"fmt"
	"sync"
	"time"

	"dropradar/internal/metrics"

	"github.com/ethereum/go-ethereum/ethclient"
)

// breakerState tracks where a provider's circuit breaker sits.
type breakerState int

const (
	breakerClosed   breakerState = iota // calls flow normally
	breakerOpen                         // provider shed until the cooldown passes
	breakerHalfOpen                     // probing whether the provider recovered
)

// breaker is a minimal circuit breaker: consecutive failures open it, the
// cooldown moves it to half-open, consecutive successes close it again. A
// failure while half-open reopens it immediately.
type breaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state     breakerState
	failures  int
	successes int
	openedAt  time.Time
}

// allow reports whether a call may go to the provider, moving an open
// breaker to half-open once the cooldown has passed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen && time.Since(b.openedAt) > b.cfg.Timeout {
		b.state = breakerHalfOpen
		b.successes = 0
	}
	return b.state != breakerOpen
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == breakerHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = breakerClosed
			b.successes = 0
		}
	}
}

func (b *breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}

	b.failures++
	if b.state == breakerClosed && b.failures >= b.cfg.FailureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
		b.failures = 0
	}
}

// Provider is one RPC endpoint of a blockchain with breaker-guarded health.
// Probe reads fail over across providers; streaming subscriptions go through
// the network's WS endpoint instead.
type Provider struct {
	Name     string
	URL      string
	Weight   int
	MaxRange uint64 // eth_getLogs block range the endpoint accepts
	Timeout  time.Duration

	client *ethclient.Client
	cb     breaker
}

// NewProvider dials the endpoint and wraps it with a circuit breaker.
func NewProvider(name, url string, weight int, maxRange uint64, timeout time.Duration, cbConfig CircuitBreakerConfig) (*Provider, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to provider %s: %w", name, err)
	}

	return &Provider{
		Name:     name,
		URL:      url,
		Weight:   weight,
		MaxRange: maxRange,
		Timeout:  timeout,
		client:   client,
		cb:       breaker{cfg: cbConfig},
	}, nil
}

// IsHealthy reports whether the breaker currently admits calls.
func (p *Provider) IsHealthy() bool {
	return p.cb.allow()
}

// RecordSuccess feeds a successful call into the breaker.
func (p *Provider) RecordSuccess() {
	p.cb.onSuccess()
}

// RecordFailure feeds a failed call into the breaker.
func (p *Provider) RecordFailure(err error) {
	errorCode := "unknown"
	if err != nil {
		errorCode = err.Error()
	}
	metrics.RPCErrorsTotal.WithLabelValues(p.Name, errorCode).Inc()

	p.cb.onFailure()
}

// GetClient returns the ethclient for this provider.
func (p *Provider) GetClient() *ethclient.Client {
	return p.client
}

// Close closes the provider's client connection.
func (p *Provider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// CircuitBreakerConfig holds the breaker thresholds shared by all providers
// of a chain.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig returns the thresholds used when the chains
// file configures none.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}
