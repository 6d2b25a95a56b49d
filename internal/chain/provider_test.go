package chain

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T, name string, weight int) *Provider {
	t.Helper()

	// HTTP transports dial lazily, so no endpoint needs to be listening.
	provider, err := NewProvider(name, "http://127.0.0.1:1", weight, 100, time.Second, CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(provider.Close)
	return provider
}

func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	provider := testProvider(t, "primary", 1)
	require.True(t, provider.IsHealthy())

	provider.RecordFailure(errors.New("timeout"))
	require.True(t, provider.IsHealthy())

	provider.RecordFailure(errors.New("timeout"))
	require.False(t, provider.IsHealthy())
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	provider := testProvider(t, "primary", 1)

	provider.RecordFailure(errors.New("timeout"))
	provider.RecordFailure(errors.New("timeout"))
	require.False(t, provider.IsHealthy())

	// After the cooldown the breaker lets probe calls through.
	time.Sleep(60 * time.Millisecond)
	require.True(t, provider.IsHealthy())

	provider.RecordSuccess()
	provider.RecordSuccess()
	require.True(t, provider.IsHealthy())

	// Fully closed again: a single new failure does not reopen it.
	provider.RecordFailure(errors.New("blip"))
	require.True(t, provider.IsHealthy())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	provider := testProvider(t, "primary", 1)

	provider.RecordFailure(errors.New("timeout"))
	provider.RecordFailure(errors.New("timeout"))
	time.Sleep(60 * time.Millisecond)
	require.True(t, provider.IsHealthy())

	provider.RecordFailure(errors.New("still down"))
	require.False(t, provider.IsHealthy())
}

func TestPoolSelectsHealthyProviders(t *testing.T) {
	primary := testProvider(t, "primary", 10)
	secondary := testProvider(t, "secondary", 1)
	pool := NewPool([]*Provider{secondary, primary})

	// Sorted by weight: primary first.
	selected, err := pool.SelectProvider()
	require.NoError(t, err)
	require.Equal(t, "primary", selected.Name)

	// Round-robin rotates across healthy providers.
	selected, err = pool.SelectProvider()
	require.NoError(t, err)
	require.Equal(t, "secondary", selected.Name)

	// An open breaker takes the provider out of rotation.
	primary.RecordFailure(errors.New("timeout"))
	primary.RecordFailure(errors.New("timeout"))
	for i := 0; i < 4; i++ {
		selected, err = pool.SelectProvider()
		require.NoError(t, err)
		require.Equal(t, "secondary", selected.Name)
	}
}

func TestCircuitBreakerFailureWhileOpenKeepsCooldown(t *testing.T) {
	provider := testProvider(t, "primary", 1)

	provider.RecordFailure(errors.New("timeout"))
	provider.RecordFailure(errors.New("timeout"))
	require.False(t, provider.IsHealthy())

	// The all-unhealthy fallback still routes calls here; their failures
	// must not push the cooldown out indefinitely.
	provider.RecordFailure(errors.New("timeout"))
	time.Sleep(60 * time.Millisecond)
	require.True(t, provider.IsHealthy())
}

func TestClampLogRange(t *testing.T) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(1000),
		ToBlock:   big.NewInt(6000),
	}

	clamped := clampLogRange(query, 10)
	require.Equal(t, uint64(5991), clamped.FromBlock.Uint64())
	require.Equal(t, uint64(6000), clamped.ToBlock.Uint64())

	// Queries already inside the range pass through untouched.
	wide := clampLogRange(query, 10000)
	require.Equal(t, uint64(1000), wide.FromBlock.Uint64())

	// Open-ended queries and unlimited providers are left alone.
	open := clampLogRange(ethereum.FilterQuery{ToBlock: big.NewInt(6000)}, 10)
	require.Nil(t, open.FromBlock)
	unlimited := clampLogRange(query, 0)
	require.Equal(t, uint64(1000), unlimited.FromBlock.Uint64())
}

func TestPoolFallsBackWhenAllUnhealthy(t *testing.T) {
	only := testProvider(t, "only", 1)
	pool := NewPool([]*Provider{only})

	only.RecordFailure(errors.New("timeout"))
	only.RecordFailure(errors.New("timeout"))

	selected, err := pool.SelectProvider()
	require.Error(t, err)
	require.Equal(t, "only", selected.Name)
}
