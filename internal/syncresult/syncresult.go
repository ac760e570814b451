// Package syncresult accumulates per-item outcomes of a synchronization run.
package syncresult

import (
	"fmt"
	"sort"
	"sync"
)

type Summary struct {
	SuccessCount      int      `json:"successCount"`
	FailureCount      int      `json:"failureCount"`
	TotalCount        int      `json:"totalCount"`
	Logs              []string `json:"logs,omitempty"`
	FailedResourceIDs []string `json:"failedResourceIds"`
}

// Aggregator is safe for use by concurrent workers.
type Aggregator struct {
	mu      sync.Mutex
	success int
	failure int
	logs    []string
	failed  map[string]struct{}
}

func New() *Aggregator {
	return &Aggregator{failed: make(map[string]struct{})}
}

func (a *Aggregator) RecordSuccess() {
	a.mu.Lock()
	a.success++
	a.mu.Unlock()
}

// RecordFailure counts one failed item. An empty id is counted but not added to the failed set.
func (a *Aggregator) RecordFailure(id string, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failure++
	if id != "" {
		a.failed[id] = struct{}{}
	}
	if message != "" {
		a.logs = append(a.logs, message)
	}
}

// Logf appends a log line without touching the counters.
func (a *Aggregator) Logf(format string, args ...any) {
	a.mu.Lock()
	a.logs = append(a.logs, fmt.Sprintf(format, args...))
	a.mu.Unlock()
}

// Finalize returns a snapshot; later calls to the aggregator do not change it.
func (a *Aggregator) Finalize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.failed))
	for id := range a.failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	logs := make([]string, len(a.logs))
	copy(logs, a.logs)

	return Summary{
		SuccessCount:      a.success,
		FailureCount:      a.failure,
		TotalCount:        a.success + a.failure,
		Logs:              logs,
		FailedResourceIDs: ids,
	}
}
