package sources

import (
	"context"

	"dropradar/internal/models"
)

// curatedEntry is one row of the maintained known-defi list. The list is
// compiled in: it changes with releases, not at runtime.
type curatedEntry struct {
	Name            string
	Symbol          string
	ContractAddress string
	TokenAddress    string
	Blockchain      string
	Description     string
	Website         string
	URL             string
}

var curatedList = []curatedEntry{
	{
		Name:            "Uniswap",
		Symbol:          "UNI",
		ContractAddress: "0x090d4613473dee047c3f2706764f49e0821d256e",
		TokenAddress:    "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984",
		Blockchain:      "ethereum",
		Description:     "Retroactive governance token distribution to protocol users",
		Website:         "https://uniswap.org",
		URL:             "https://app.uniswap.org/claim",
	},
	{
		Name:            "Arbitrum",
		Symbol:          "ARB",
		ContractAddress: "0x67a24ce4321ab3af51c2d0a4801c3e111d88c9d9",
		TokenAddress:    "0x912ce59144191c1204e64559fe8253a0e49e6548",
		Blockchain:      "arbitrum",
		Description:     "DAO governance token airdrop to early network users",
		Website:         "https://arbitrum.foundation",
		URL:             "https://arbitrum.foundation/airdrop",
	},
	{
		Name:            "ENS",
		Symbol:          "ENS",
		ContractAddress: "0xc18360217d8f7ab5e7c516566761ea12ce7f9d72",
		TokenAddress:    "0xc18360217d8f7ab5e7c516566761ea12ce7f9d72",
		Blockchain:      "ethereum",
		Description:     "Governance token distribution to .eth name holders",
		Website:         "https://ens.domains",
		URL:             "https://claim.ens.domains",
	},
	{
		Name:            "Optimism",
		Symbol:          "OP",
		TokenAddress:    "0x4200000000000000000000000000000000000042",
		Blockchain:      "optimism",
		Description:     "Ongoing governance token distributions to ecosystem participants",
		Website:         "https://optimism.io",
		URL:             "https://app.optimism.io/airdrops",
	},
}

// Curated serves the maintained known-defi list. Highest-confidence source.
type Curated struct{}

func NewCurated() *Curated {
	return &Curated{}
}

func (c *Curated) Name() string {
	return "curated"
}

func (c *Curated) Fetch(ctx context.Context) ([]models.Candidate, error) {
	candidates := make([]models.Candidate, 0, len(curatedList))
	for _, entry := range curatedList {
		candidates = append(candidates, models.Candidate{
			Name:            entry.Name,
			Symbol:          entry.Symbol,
			ContractAddress: models.NormalizeAddress(entry.ContractAddress),
			TokenAddress:    models.NormalizeAddress(entry.TokenAddress),
			Blockchain:      entry.Blockchain,
			Description:     entry.Description,
			Website:         entry.Website,
			Status:          models.StatusActive,
			Source:          models.SourceKnownDeFi,
			SourceURL:       entry.URL,
		})
	}
	return candidates, nil
}
