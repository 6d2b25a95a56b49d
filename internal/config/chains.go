package config

import (
	"fmt"
	"os"
	"time"

	"dropradar/internal/chain"

	"gopkg.in/yaml.v3"
)

// ProviderYAML represents a single RPC provider of one blockchain
type ProviderYAML struct {
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Weight   int           `yaml:"weight"`
	MaxRange uint64        `yaml:"maxRange"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ChainYAML represents one configured blockchain
type ChainYAML struct {
	Name      string         `yaml:"name"`
	ChainID   uint64         `yaml:"chain_id"`
	WSURL     string         `yaml:"ws_url"`
	Providers []ProviderYAML `yaml:"providers"`
}

// ChainsYAML holds the complete multi-chain configuration
type ChainsYAML struct {
	Chains         []ChainYAML        `yaml:"chains"`
	CircuitBreaker CircuitBreakerYAML `yaml:"circuit_breaker"`
}

// CircuitBreakerYAML holds circuit breaker configuration from YAML
type CircuitBreakerYAML struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// LoadChainsFromYAML loads the per-blockchain provider configuration.
// Each blockchain gets its own pool; streaming goes over the chain's WS URL.
func LoadChainsFromYAML(filePath string) ([]*chain.Network, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains config %s: %w", filePath, err)
	}

	var cfg ChainsYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse chains config: %w", err)
	}

	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("no chains configured in %s", filePath)
	}

	cbConfig := chain.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
	}
	if cbConfig.FailureThreshold == 0 {
		cbConfig = chain.DefaultCircuitBreakerConfig()
	}

	networks := make([]*chain.Network, 0, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		if chainCfg.Name == "" {
			continue // Skip invalid entries
		}

		providers := make([]*chain.Provider, 0, len(chainCfg.Providers))
		for _, pCfg := range chainCfg.Providers {
			if pCfg.URL == "" {
				continue
			}

			// Set defaults
			if pCfg.Weight == 0 {
				pCfg.Weight = 1
			}
			if pCfg.MaxRange == 0 {
				pCfg.MaxRange = 10 // Safe default for free tier
			}
			if pCfg.Timeout == 0 {
				pCfg.Timeout = 30 * time.Second
			}

			provider, err := chain.NewProvider(
				pCfg.Name,
				pCfg.URL,
				pCfg.Weight,
				pCfg.MaxRange,
				pCfg.Timeout,
				cbConfig,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create provider %s for chain %s: %w", pCfg.Name, chainCfg.Name, err)
			}

			providers = append(providers, provider)
		}

		if len(providers) == 0 {
			return nil, fmt.Errorf("chain %s has no valid providers", chainCfg.Name)
		}

		networks = append(networks, &chain.Network{
			Name:    chainCfg.Name,
			ChainID: chainCfg.ChainID,
			WSURL:   chainCfg.WSURL,
			Pool:    chain.NewPool(providers),
		})
	}

	if len(networks) == 0 {
		return nil, fmt.Errorf("no valid chains created from config")
	}

	return networks, nil
}
