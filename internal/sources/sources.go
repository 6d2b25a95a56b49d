package sources

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dropradar/internal/metrics"
	"dropradar/internal/models"
	"dropradar/pkg/logger"
)

// Fetcher pulls candidate airdrop records from one external source.
// Implementations swallow their own failures: a broken source returns an
// error here, and FetchAll reduces that to a log line and an empty slice so
// one dead source never stalls the sync.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Candidate, error)
}

// FetchAll runs every fetcher concurrently with no shared state and merges
// their candidates. No ordering guarantee across sources.
func FetchAll(ctx context.Context, fetchers []Fetcher, log *logger.Logger) []models.Candidate {
	var (
		mu  sync.Mutex
		all []models.Candidate
		wg  sync.WaitGroup
	)

	for _, fetcher := range fetchers {
		wg.Add(1)
		go func(f Fetcher) {
			defer wg.Done()

			candidates, err := f.Fetch(ctx)
			if err != nil {
				// SourceUnavailable: logged, skipped, never aborts the sync.
				metrics.SourceFetchesTotal.WithLabelValues(f.Name(), "error").Inc()
				log.Warn("source %s unavailable: %v", f.Name(), err)
				return
			}

			metrics.SourceFetchesTotal.WithLabelValues(f.Name(), "success").Inc()
			log.Debug("source %s returned %d candidates", f.Name(), len(candidates))

			mu.Lock()
			all = append(all, candidates...)
			mu.Unlock()
		}(fetcher)
	}

	wg.Wait()
	return all
}

// newHTTPClient builds the shared client shape used by the HTTP-backed
// fetchers.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
