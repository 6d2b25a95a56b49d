package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dropradar/internal/models"
)

// Aggregator pulls candidates from a coingecko-style REST API that lists
// running token distribution campaigns.
type Aggregator struct {
	url    string
	client *http.Client
}

func NewAggregator(url string, timeout time.Duration) *Aggregator {
	return &Aggregator{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

func (a *Aggregator) Name() string {
	return "aggregator"
}

// aggregatorItem mirrors the wire shape of one campaign entry.
type aggregatorItem struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"contract_address"`
	TokenAddress    string `json:"token_address"`
	Network         string `json:"network"`
	Description     string `json:"description"`
	Website         string `json:"website"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	TotalPrize      string `json:"total_prize"`
	Status          string `json:"status"`
}

type aggregatorResponse struct {
	Data []aggregatorItem `json:"data"`
}

func (a *Aggregator) Fetch(ctx context.Context) ([]models.Candidate, error) {
	if a.url == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build aggregator request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}

	var parsed aggregatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode aggregator response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.Name == "" || item.Symbol == "" {
			continue
		}

		candidate := models.Candidate{
			Name:            item.Name,
			Symbol:          item.Symbol,
			ContractAddress: models.NormalizeAddress(item.ContractAddress),
			TokenAddress:    models.NormalizeAddress(item.TokenAddress),
			Blockchain:      item.Network,
			Description:     item.Description,
			Website:         item.Website,
			TotalValue:      item.TotalPrize,
			Status:          parseStatus(item.Status),
			Source:          models.SourceCoinGecko,
			SourceURL:       a.url,
		}
		candidate.StartDate = parseDate(item.StartDate)
		candidate.EndDate = parseDate(item.EndDate)

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// parseDate accepts the date shapes the upstream APIs actually emit.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}

func parseStatus(value string) models.Status {
	switch value {
	case "upcoming":
		return models.StatusUpcoming
	case "ended", "finished", "closed":
		return models.StatusEnded
	default:
		return models.StatusActive
	}
}
