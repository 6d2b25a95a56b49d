package monitor

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func addr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i))
}

func TestClassifierFlagsMassDistribution(t *testing.T) {
	c := NewTransferClassifier(10, 3, 20)
	token := addr(1)
	sender := addr(2)

	// First 10 observations stay below the threshold.
	for i := 0; i < 10; i++ {
		require.False(t, c.Observe(token, sender, 100))
	}

	// The 11th crosses it: >10 transfers from one sender.
	require.True(t, c.Observe(token, sender, 100))
}

func TestClassifierTooManySenders(t *testing.T) {
	c := NewTransferClassifier(10, 3, 20)
	token := addr(2)

	// 11 transfers from 4 distinct senders: volume is there, the
	// concentrated-sender signature is not.
	for i := 0; i < 11; i++ {
		require.False(t, c.Observe(token, addr(10+i%4), 100))
	}
	require.False(t, c.Observe(token, addr(14), 100))
}

func TestClassifierWindowPruning(t *testing.T) {
	c := NewTransferClassifier(10, 3, 20)
	token := addr(3)
	sender := addr(4)

	for i := 0; i < 10; i++ {
		require.False(t, c.Observe(token, sender, 100))
	}

	// Far enough ahead that the earlier burst fell out of the window.
	require.False(t, c.Observe(token, sender, 200))
}

func TestClassifierForget(t *testing.T) {
	c := NewTransferClassifier(10, 3, 20)
	token := addr(5)
	sender := addr(6)

	for i := 0; i < 10; i++ {
		c.Observe(token, sender, 100)
	}
	require.True(t, c.Observe(token, sender, 100))

	c.Forget(token)
	require.False(t, c.Observe(token, sender, 100))
}
