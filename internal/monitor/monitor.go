package monitor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"dropradar/internal/chain"
	"dropradar/internal/config"
	"dropradar/internal/metrics"
	"dropradar/internal/models"
	"dropradar/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ConnState is the connection state of one blockchain stream.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SeenCache deduplicates contracts the monitor already reported. Optional;
// nil disables dedupe.
type SeenCache interface {
	IsContractSeen(ctx context.Context, blockchain, address string) (bool, error)
	MarkContractSeen(ctx context.Context, blockchain, address string) error
}

// Monitor maintains one streaming subscription per configured blockchain and
// emits normalized domain events over a single channel. The reconciler is
// the only consumer; a slow consumer drops events instead of blocking the
// stream reader.
type Monitor struct {
	networks    []*chain.Network
	cfg         config.MonitorConfig
	logger      *logger.Logger
	seen        SeenCache
	events      chan models.ChainEvent
	classifiers map[string]*TransferClassifier

	// dial is swappable in tests.
	dial func(ctx context.Context, network *chain.Network) (chain.Subscriber, error)

	mu      sync.Mutex
	states  map[string]ConnState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a monitor over the configured networks.
func New(networks []*chain.Network, cfg config.MonitorConfig, seen SeenCache, log *logger.Logger) *Monitor {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	classifiers := make(map[string]*TransferClassifier, len(networks))
	states := make(map[string]ConnState, len(networks))
	for _, network := range networks {
		classifiers[network.Name] = NewTransferClassifier(
			cfg.MassTransferThreshold,
			cfg.MassTransferMaxSenders,
			cfg.MassTransferBlockWindow,
		)
		states[network.Name] = StateDisconnected
	}

	return &Monitor{
		networks:    networks,
		cfg:         cfg,
		logger:      log,
		seen:        seen,
		events:      make(chan models.ChainEvent, cfg.EventBuffer),
		classifiers: classifiers,
		states:      states,
		dial: func(ctx context.Context, network *chain.Network) (chain.Subscriber, error) {
			return network.DialStream(ctx)
		},
	}
}

// Events returns the channel of normalized domain events.
func (m *Monitor) Events() <-chan models.ChainEvent {
	return m.events
}

// State reports the connection state for one blockchain.
func (m *Monitor) State(blockchain string) ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[blockchain]
}

func (m *Monitor) setState(blockchain string, state ConnState) {
	m.mu.Lock()
	m.states[blockchain] = state
	m.mu.Unlock()
}

// Start launches one streaming goroutine per network. A stopped monitor
// cannot be started again; its event channel is already closed.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	for _, network := range m.networks {
		m.wg.Add(1)
		go func(network *chain.Network) {
			defer m.wg.Done()
			m.runNetwork(runCtx, network)
		}(network)
	}
}

// Stop tears down all connections, cancels pending reconnect timers and
// closes the event channel once every stream goroutine has returned. Stop
// is terminal.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	close(m.events)
}

// runNetwork drives the per-blockchain connection state machine:
// Disconnected -> Connecting -> Connected -> (Disconnected on error), with
// bounded exponential-backoff reconnects. A successful connect resets the
// attempt counter; exhausting the attempts abandons the chain until restart.
func (m *Monitor) runNetwork(ctx context.Context, network *chain.Network) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			m.setState(network.Name, StateDisconnected)
			return
		}

		m.setState(network.Name, StateConnecting)
		err := m.streamOnce(ctx, network, func() {
			attempt = 0
			m.setState(network.Name, StateConnected)
			m.logger.Info("monitor connected to %s", network.Name)
		})
		m.setState(network.Name, StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.logger.Warn("monitor stream for %s ended: %v", network.Name, err)
		}

		if attempt >= m.cfg.MaxReconnectAttempts {
			m.logger.Error("monitor abandoning %s after %d reconnect attempts; restart required", network.Name, attempt)
			return
		}

		delay := backoffDelay(m.cfg.ReconnectBase, attempt, m.cfg.ReconnectMaxDelay)
		attempt++
		metrics.MonitorReconnectsTotal.WithLabelValues(network.Name).Inc()
		m.logger.Info("monitor reconnecting to %s in %s (attempt %d/%d)", network.Name, delay, attempt, m.cfg.MaxReconnectAttempts)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes base * 2^attempt capped at max.
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt > 20 {
		// Shift would overflow long before this; just cap.
		return max
	}
	delay := base << uint(attempt)
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// streamOnce runs one connected session: dial, subscribe, read until error
// or cancellation. onConnected fires once both subscriptions are live.
func (m *Monitor) streamOnce(ctx context.Context, network *chain.Network, onConnected func()) error {
	client, err := m.dial(ctx, network)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer client.Close()

	heads := make(chan *types.Header, 16)
	headSub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("head subscription failed: %w", err)
	}
	defer headSub.Unsubscribe()

	logs := make(chan types.Log, 256)
	query := ethereum.FilterQuery{
		Topics: [][]common.Hash{{TopicTransfer, TopicNewAirdrop, TopicClaimOpened}},
	}
	logSub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("log subscription failed: %w", err)
	}
	defer logSub.Unsubscribe()

	onConnected()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-headSub.Err():
			return fmt.Errorf("head subscription error: %w", err)
		case err := <-logSub.Err():
			return fmt.Errorf("log subscription error: %w", err)
		case head := <-heads:
			m.inspectBlock(ctx, client, network, head)
		case entry := <-logs:
			m.handleLog(ctx, network, entry)
		}
	}
}

// handleLog classifies one received log entry and emits the normalized
// event. Consumer failures never propagate back to the stream.
func (m *Monitor) handleLog(ctx context.Context, network *chain.Network, entry types.Log) {
	if len(entry.Topics) == 0 {
		return
	}

	switch entry.Topics[0] {
	case TopicTransfer:
		m.handleTransfer(ctx, network, entry)

	case TopicNewAirdrop:
		// Trusted signal, no further heuristics.
		contract := entry.Address
		if len(entry.Topics) > 1 {
			contract = common.BytesToAddress(entry.Topics[1].Bytes())
		}
		m.emit(network, models.ChainEvent{
			Type:            models.EventNewAirdrop,
			Blockchain:      network.Name,
			ContractAddress: models.NormalizeAddress(contract.Hex()),
			TxHash:          entry.TxHash.Hex(),
			BlockNumber:     entry.BlockNumber,
			Timestamp:       time.Now(),
		})

	case TopicClaimOpened:
		contract := entry.Address
		if len(entry.Topics) > 1 {
			contract = common.BytesToAddress(entry.Topics[1].Bytes())
		}
		m.emit(network, models.ChainEvent{
			Type:            models.EventClaimOpened,
			Blockchain:      network.Name,
			ContractAddress: models.NormalizeAddress(contract.Hex()),
			TxHash:          entry.TxHash.Hex(),
			BlockNumber:     entry.BlockNumber,
			Timestamp:       time.Now(),
		})
	}
}

// handleTransfer applies the airdrop-candidate heuristics: mint-style
// transfers from the zero address, or the mass-distribution signature.
func (m *Monitor) handleTransfer(ctx context.Context, network *chain.Network, entry types.Log) {
	if len(entry.Topics) != 3 {
		return
	}

	from := common.BytesToAddress(entry.Topics[1].Bytes())
	to := common.BytesToAddress(entry.Topics[2].Bytes())

	classifier := m.classifiers[network.Name]
	possible := from == zeroAddress
	if !possible && classifier != nil {
		possible = classifier.Observe(entry.Address, from, entry.BlockNumber)
	}
	if !possible {
		return
	}

	if m.alreadySeen(ctx, network.Name, entry.Address.Hex()) {
		return
	}
	if classifier != nil {
		classifier.Forget(entry.Address)
	}

	value := new(big.Int)
	if len(entry.Data) >= 32 {
		value.SetBytes(entry.Data[:32])
	}

	m.emit(network, models.ChainEvent{
		Type:            models.EventTokenTransfer,
		Blockchain:      network.Name,
		ContractAddress: models.NormalizeAddress(entry.Address.Hex()),
		From:            models.NormalizeAddress(from.Hex()),
		To:              models.NormalizeAddress(to.Hex()),
		Value:           value.String(),
		TxHash:          entry.TxHash.Hex(),
		BlockNumber:     entry.BlockNumber,
		PossibleAirdrop: true,
		Timestamp:       time.Now(),
	})
}

// inspectBlock checks a bounded prefix of the block's transactions for
// contract creations whose bytecode matches the airdrop keyword heuristic.
// Best-effort: any failure just skips the block.
func (m *Monitor) inspectBlock(ctx context.Context, client chain.Subscriber, network *chain.Network, head *types.Header) {
	block, err := client.BlockByNumber(ctx, head.Number)
	if err != nil {
		m.logger.Debug("block lookup failed for %s #%d: %v", network.Name, head.Number.Uint64(), err)
		return
	}

	limit := m.cfg.DeployScanTxLimit
	if limit <= 0 {
		limit = 20
	}

	for i, tx := range block.Transactions() {
		if i >= limit {
			break
		}
		if tx.To() != nil {
			continue
		}

		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if err != nil || receipt.ContractAddress == (common.Address{}) {
			continue
		}

		code, err := client.CodeAt(ctx, receipt.ContractAddress, nil)
		if err != nil || !looksLikeAirdropCode(code) {
			continue
		}

		if m.alreadySeen(ctx, network.Name, receipt.ContractAddress.Hex()) {
			continue
		}

		m.emit(network, models.ChainEvent{
			Type:            models.EventContractDeployed,
			Blockchain:      network.Name,
			ContractAddress: models.NormalizeAddress(receipt.ContractAddress.Hex()),
			TxHash:          tx.Hash().Hex(),
			BlockNumber:     head.Number.Uint64(),
			PossibleAirdrop: true,
			Timestamp:       time.Now(),
		})
	}
}

// alreadySeen checks and marks the dedupe cache. Cache failures are treated
// as "not seen" so Redis outages never suppress events entirely.
func (m *Monitor) alreadySeen(ctx context.Context, blockchain, address string) bool {
	if m.seen == nil {
		return false
	}

	seen, err := m.seen.IsContractSeen(ctx, blockchain, address)
	if err == nil && seen {
		return true
	}
	_ = m.seen.MarkContractSeen(ctx, blockchain, address)
	return false
}

// emit performs the non-blocking fire-and-forget send to the reconciler.
func (m *Monitor) emit(network *chain.Network, event models.ChainEvent) {
	metrics.MonitorEventsTotal.WithLabelValues(network.Name, string(event.Type)).Inc()

	select {
	case m.events <- event:
	default:
		metrics.MonitorEventsDroppedTotal.WithLabelValues(network.Name).Inc()
		m.logger.Warn("event channel full, dropping %s event for %s", event.Type, event.ContractAddress)
	}
}
