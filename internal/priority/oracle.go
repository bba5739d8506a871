package priority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
)

// Oracle fetches the priority list from an external source (spec §4.7,
// the "blockchain priority-source" collaborator named in §1/§9 — this
// implements only the fetch-with-fallback contract, not any blockchain
// client). On any failure it returns a static fallback list defined at
// startup and logs the reason at error level. The engine cannot distinguish
// oracle-derived from fallback lists; both are equally authoritative for one
// routing pass (the Open Question in §9 is resolved as "advisory with
// fallback" uniformly).
type Oracle struct {
	url      string
	client   *http.Client
	fallback []Candidate
	logger   *logging.Logger

	mu            sync.Mutex
	usingFallback bool
	lastError     string
}

// NewOracle creates an Oracle source. url is the external endpoint;
// fallback is returned whenever the fetch fails for any reason.
func NewOracle(url string, fallback []Candidate, logger *logging.Logger) *Oracle {
	return &Oracle{
		url:      url,
		client:   &http.Client{Timeout: 2 * time.Second},
		fallback: fallback,
		logger:   logger,
	}
}

type oracleEntry struct {
	ProcessorID string `json:"processorId"`
	Name        string `json:"name"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
}

// GetPriorities fetches the remote priority list, falling back to the
// static startup list on timeout, parse failure, or an empty result.
func (o *Oracle) GetPriorities(ctx context.Context) ([]Candidate, error) {
	candidates, err := o.fetch(ctx)
	if err != nil {
		o.setStatus(true, err.Error())
		o.logger.Error("priority_oracle_fallback", "reason", err.Error())
		return o.fallback, nil
	}
	if len(candidates) == 0 {
		o.setStatus(true, "oracle returned empty result")
		o.logger.Error("priority_oracle_fallback", "reason", "oracle returned empty result")
		return o.fallback, nil
	}
	o.setStatus(false, "")
	return candidates, nil
}

func (o *Oracle) setStatus(usingFallback bool, lastError string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.usingFallback = usingFallback
	o.lastError = lastError
}

// Status reports whether the most recent fetch used the static fallback
// list, satisfying health.StatusReporter.
func (o *Oracle) Status() (usingFallback bool, lastError string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usingFallback, o.lastError
}

func (o *Oracle) fetch(ctx context.Context) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building oracle request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var entries []oracleEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing oracle response: %w", err)
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		id, err := parseProcessorID(e.ProcessorID)
		if err != nil {
			return nil, fmt.Errorf("invalid processorId in oracle response: %w", err)
		}
		if !e.Enabled {
			continue
		}
		candidates = append(candidates, Candidate{
			ProcessorID: id,
			Name:        e.Name,
			Priority:    e.Priority,
			Enabled:     e.Enabled,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ProcessorID.String() < candidates[j].ProcessorID.String()
	})
	return candidates, nil
}
