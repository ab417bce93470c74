// SPDX-License-Identifier: AGPL-3.0-or-later
package metrics

import (
	"bufio"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Registry collects counters, gauges, and histograms for Prometheus exposition.
type Registry struct {
	mu sync.Mutex

	httpRequests       *httpHistogram
	buildInfoLabels    map[string]string
	mutations          map[[2]string]uint64
	runTransitions     map[string]uint64
	authzDenials       map[string]uint64
	auditEntriesTotal  uint64
	persistenceLatency map[[2]string]*valueHistogram
}

// NewRegistry constructs a metrics registry with default buckets.
func NewRegistry() *Registry {
	r := &Registry{
		httpRequests:   newHTTPHistogram(),
		mutations:      make(map[[2]string]uint64),
		runTransitions: make(map[string]uint64),
		authzDenials:   make(map[string]uint64),
		buildInfoLabels: map[string]string{
			"version": "dev",
		},
		persistenceLatency: make(map[[2]string]*valueHistogram),
	}
	for op, outcomes := range persistenceLatencyDefaults {
		op = normalizeLabel(op)
		for _, outcome := range outcomes {
			key := [2]string{op, normalizeLabel(outcome)}
			r.persistenceLatency[key] = newValueHistogram(persistenceLatencyBuckets)
		}
	}
	return r
}

// Default global registry used by the server.
var Default = NewRegistry()

// SetBuildInfo configures the build info labels exposed by uran_build_info.
func (r *Registry) SetBuildInfo(labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range labels {
		r.buildInfoLabels[k] = v
	}
}

// RecordHTTP records an HTTP request metric.
func (r *Registry) RecordHTTP(route, method string, status int, duration time.Duration) {
	if r == nil || route == "" || method == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.httpRequests.observe(route, method, status, duration)
}

// RecordMutation increments the mutation counter for an entity/action pair.
func (r *Registry) RecordMutation(entity, action string) {
	entity = normalizeLabel(entity)
	action = normalizeLabel(action)
	if entity == "" || action == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations[[2]string{entity, action}]++
}

// RecordRunTransition increments the run transition counter for the target state.
func (r *Registry) RecordRunTransition(toStatus string) {
	toStatus = normalizeLabel(toStatus)
	if toStatus == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runTransitions[toStatus]++
}

// RecordAuthzDenial increments the authorization denial counter for an action.
func (r *Registry) RecordAuthzDenial(action string) {
	action = normalizeLabel(action)
	if action == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authzDenials[action]++
}

// RecordAuditEntry increments the appended audit entry counter.
func (r *Registry) RecordAuditEntry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditEntriesTotal++
}

// AuditEntriesTotal exposes the audit counter for testing.
func (r *Registry) AuditEntriesTotal() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auditEntriesTotal
}

// MutationTotals returns a copy of the mutation counters for testing.
func (r *Registry) MutationTotals() map[[2]string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[[2]string]uint64, len(r.mutations))
	for k, v := range r.mutations {
		out[k] = v
	}
	return out
}

// Handler returns an http.Handler that writes Prometheus text exposition.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		r.writeAll(w)
	})
}

func (r *Registry) writeAll(w http.ResponseWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := bufio.NewWriter(w)
	defer buf.Flush()

	writeMetricHeader(buf, "http_requests_total", "Total HTTP requests", "counter")
	keys := r.httpRequests.sortedKeys()
	for _, key := range keys {
		route, method, code := key[0], key[1], key[2]
		fmt.Fprintf(buf, "http_requests_total{method=%q,route=%q,code=%q} %.0f\n", method, route, code, r.httpRequests.total(route, method, code))
	}
	buf.WriteByte('\n')

	writeMetricHeader(buf, "http_request_duration_seconds", "HTTP request latency in seconds", "histogram")
	r.httpRequests.writeHistograms(buf)
	buf.WriteByte('\n')

	writeMetricHeader(buf, "uran_build_info", "Tracker build info", "gauge")
	buf.WriteString("uran_build_info")
	buf.WriteByte('{')
	first := true
	for _, key := range sortedKeys(r.buildInfoLabels) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(buf, "%s=%q", key, r.buildInfoLabels[key])
	}
	buf.WriteString("} 1\n\n")

	writeMetricHeader(buf, "uran_mutations_total", "Committed mutations by entity and action", "counter")
	mutationKeys := make([][2]string, 0, len(r.mutations))
	for key := range r.mutations {
		mutationKeys = append(mutationKeys, key)
	}
	sort.Slice(mutationKeys, func(i, j int) bool {
		a, b := mutationKeys[i], mutationKeys[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	for _, key := range mutationKeys {
		fmt.Fprintf(buf, "uran_mutations_total{entity=%q,action=%q} %d\n", key[0], key[1], r.mutations[key])
	}
	buf.WriteByte('\n')

	writeMetricHeader(buf, "uran_run_transitions_total", "Run state transitions by target status", "counter")
	for _, status := range sortedKeysUint(r.runTransitions) {
		fmt.Fprintf(buf, "uran_run_transitions_total{to=%q} %d\n", status, r.runTransitions[status])
	}
	buf.WriteByte('\n')

	writeMetricHeader(buf, "uran_authz_denials_total", "Authorization denials by action", "counter")
	for _, action := range sortedKeysUint(r.authzDenials) {
		fmt.Fprintf(buf, "uran_authz_denials_total{action=%q} %d\n", action, r.authzDenials[action])
	}
	buf.WriteByte('\n')

	writeMetricHeader(buf, "uran_audit_entries_total", "Appended audit log entries", "counter")
	fmt.Fprintf(buf, "uran_audit_entries_total %d\n\n", r.auditEntriesTotal)

	writeMetricHeader(buf, "uran_persistence_latency_ms", "Persistence operation latency in milliseconds", "histogram")
	persistenceKeys := make([][2]string, 0, len(r.persistenceLatency))
	for key := range r.persistenceLatency {
		persistenceKeys = append(persistenceKeys, key)
	}
	sort.Slice(persistenceKeys, func(i, j int) bool {
		a, b := persistenceKeys[i], persistenceKeys[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	for _, key := range persistenceKeys {
		op, outcome := key[0], key[1]
		r.persistenceLatency[key].writeWithLabels(buf, "uran_persistence_latency_ms", map[string]string{
			"operation": op,
			"outcome":   outcome,
		})
	}
	buf.WriteByte('\n')
}

func writeMetricHeader(buf *bufio.Writer, name, help, metricType string) {
	if help != "" {
		fmt.Fprintf(buf, "# HELP %s %s\n", name, escapeHelp(help))
	}
	if metricType != "" {
		fmt.Fprintf(buf, "# TYPE %s %s\n", name, metricType)
	}
}

func escapeHelp(help string) string {
	return strings.ReplaceAll(help, "\\", "\\\\")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysUint(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type httpHistogram struct {
	// key: route|method|code
	counts map[[3]string]uint64
	hist   map[string]*simpleHistogram
}

func newHTTPHistogram() *httpHistogram {
	return &httpHistogram{
		counts: make(map[[3]string]uint64),
		hist:   make(map[string]*simpleHistogram),
	}
}

func (h *httpHistogram) observe(route, method string, status int, duration time.Duration) {
	key := [3]string{route, method, strconv.Itoa(status)}
	h.counts[key]++
	label := route + "|" + method + "|" + strconv.Itoa(status)
	b, ok := h.hist[label]
	if !ok {
		b = newSimpleHistogram([]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
		h.hist[label] = b
	}
	b.observe(duration)
}

func (h *httpHistogram) total(route, method, code string) float64 {
	key := [3]string{route, method, code}
	return float64(h.counts[key])
}

func (h *httpHistogram) sortedKeys() [][3]string {
	keys := make([][3]string, 0, len(h.counts))
	for k := range h.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return keys
}

func (h *httpHistogram) writeHistograms(buf *bufio.Writer) {
	keys := make([]string, 0, len(h.hist))
	for k := range h.hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, label := range keys {
		parts := strings.Split(label, "|")
		if len(parts) != 3 {
			continue
		}
		route, method, code := parts[0], parts[1], parts[2]
		h.hist[label].writeWithLabels(buf, "http_request_duration_seconds", map[string]string{
			"method": method,
			"route":  route,
			"code":   code,
		})
	}
}

type simpleHistogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newSimpleHistogram(buckets []float64) *simpleHistogram {
	return &simpleHistogram{
		buckets: append([]float64(nil), buckets...),
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *simpleHistogram) observe(duration time.Duration) {
	if h == nil {
		return
	}
	sec := duration.Seconds()
	for i, upper := range h.buckets {
		if sec <= upper {
			h.counts[i]++
		}
	}
	// +Inf bucket
	h.count++
	h.sum += sec
}

func (h *simpleHistogram) writeWithLabels(buf *bufio.Writer, name string, labels map[string]string) {
	if h == nil {
		return
	}
	for i, upper := range h.buckets {
		labelStr := labelsWithLE(labels, upper)
		fmt.Fprintf(buf, "%s_bucket%s %d\n", name, labelStr, h.counts[i])
	}
	labelStr := labelsWithLE(labels, math.Inf(1))
	fmt.Fprintf(buf, "%s_bucket%s %d\n", name, labelStr, h.count)
	fmt.Fprintf(buf, "%s_sum%s %g\n", name, labelsToString(labels), h.sum)
	fmt.Fprintf(buf, "%s_count%s %d\n", name, labelsToString(labels), h.count)
	buf.WriteByte('\n')
}

func labelsWithLE(labels map[string]string, le float64) string {
	labelCopy := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		labelCopy[k] = v
	}
	if math.IsInf(le, 1) {
		labelCopy["le"] = "+Inf"
	} else {
		labelCopy["le"] = strconv.FormatFloat(le, 'f', -1, 64)
	}
	return labelsToString(labelCopy)
}

func labelsToString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(labels))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// EnsurePersistenceLatency pre-creates a histogram for the supplied labels.
func (r *Registry) EnsurePersistenceLatency(operation, outcome string) {
	operation = normalizeLabel(operation)
	outcome = normalizeLabel(outcome)
	if operation == "" || outcome == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{operation, outcome}
	if _, ok := r.persistenceLatency[key]; !ok {
		r.persistenceLatency[key] = newValueHistogram(persistenceLatencyBuckets)
	}
}

// RecordPersistenceLatency records the latency of a persistence operation.
func (r *Registry) RecordPersistenceLatency(operation, outcome string, duration time.Duration) {
	operation = normalizeLabel(operation)
	outcome = normalizeLabel(outcome)
	if operation == "" || duration < 0 {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	ms := duration.Seconds() * 1000
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{operation, outcome}
	hist, ok := r.persistenceLatency[key]
	if !ok {
		hist = newValueHistogram(persistenceLatencyBuckets)
		r.persistenceLatency[key] = hist
	}
	hist.observe(ms)
}

func normalizeLabel(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}

var persistenceLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var persistenceLatencyDefaults = map[string][]string{
	"audit_append": {"ok", "error"},
	"audit_read":   {"ok", "error"},
	"tx_commit":    {"ok", "error"},
}

type valueHistogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newValueHistogram(buckets []float64) *valueHistogram {
	return &valueHistogram{
		buckets: append([]float64(nil), buckets...),
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *valueHistogram) observe(value float64) {
	if h == nil {
		return
	}
	if value < 0 {
		value = 0
	}
	for i, upper := range h.buckets {
		if value <= upper {
			h.counts[i]++
		}
	}
	h.count++
	h.sum += value
}

func (h *valueHistogram) writeWithLabels(buf *bufio.Writer, name string, labels map[string]string) {
	if h == nil {
		return
	}
	for i, upper := range h.buckets {
		fmt.Fprintf(buf, "%s_bucket%s %d\n", name, labelsWithLE(labels, upper), h.counts[i])
	}
	fmt.Fprintf(buf, "%s_bucket%s %d\n", name, labelsWithLE(labels, math.Inf(1)), h.count)
	fmt.Fprintf(buf, "%s_sum%s %g\n", name, labelsToString(labels), h.sum)
	fmt.Fprintf(buf, "%s_count%s %d\n\n", name, labelsToString(labels), h.count)
}
