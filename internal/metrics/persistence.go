// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"strings"
	"time"

	servermetrics "github.com/uran-qa/uran/internal/server/metrics"
)

const (
	// Persistence operations recorded in metrics.
	PersistenceOperationAuditAppend = "audit_append"
	PersistenceOperationAuditRead   = "audit_read"
	PersistenceOperationTxCommit    = "tx_commit"

	// Persistence outcomes used to categorize latency observations.
	PersistenceOutcomeOK       = "ok"
	PersistenceOutcomeError    = "error"
	PersistenceOutcomeConflict = "conflict"
)

var latencyDefaults = map[string][]string{
	PersistenceOperationAuditAppend: {
		PersistenceOutcomeOK,
		PersistenceOutcomeError,
	},
	PersistenceOperationAuditRead: {
		PersistenceOutcomeOK,
		PersistenceOutcomeError,
	},
	PersistenceOperationTxCommit: {
		PersistenceOutcomeOK,
		PersistenceOutcomeConflict,
		PersistenceOutcomeError,
	},
}

func init() {
	for operation, outcomes := range latencyDefaults {
		for _, outcome := range outcomes {
			servermetrics.Default.EnsurePersistenceLatency(operation, outcome)
		}
	}
}

// PersistenceTimer records elapsed time for a persistence operation and
// writes the result when Observe is invoked.
type PersistenceTimer struct {
	operation string
	start     time.Time
	recorded  bool
}

// StartPersistenceTimer returns a timer for the supplied operation.
func StartPersistenceTimer(operation string) *PersistenceTimer {
	op := sanitize(operation)
	if op == "" {
		return nil
	}
	return &PersistenceTimer{
		operation: op,
		start:     time.Now(),
	}
}

// Observe records the latency for the timer using the provided outcome.
func (t *PersistenceTimer) Observe(outcome string) {
	if t == nil || t.recorded {
		return
	}
	t.recorded = true
	o := sanitize(outcome)
	if o == "" {
		o = PersistenceOutcomeOK
	}
	servermetrics.Default.RecordPersistenceLatency(t.operation, o, time.Since(t.start))
}

// RecordMutation increments the committed-mutation counter for an entity/action pair.
func RecordMutation(entity, action string) {
	servermetrics.Default.RecordMutation(sanitize(entity), sanitize(action))
}

// RecordRunTransition increments the run transition counter for the target status.
func RecordRunTransition(toStatus string) {
	servermetrics.Default.RecordRunTransition(sanitize(toStatus))
}

// RecordAuditEntry increments the appended audit entry counter.
func RecordAuditEntry() {
	servermetrics.Default.RecordAuditEntry()
}

func sanitize(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}
