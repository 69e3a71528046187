package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	startTime time.Time

	requestsTotal   atomic.Int64
	requestsSuccess atomic.Int64
	requestsFailed  atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	analysisRepaired atomic.Int64

	activeConnections atomic.Int64

	responseTimes     []time.Duration
	responseTimesLock sync.Mutex

	// Keyed "capability/provider". Counts resolutions won and cumulative
	// winner latency.
	resolutionWins    map[string]*atomic.Int64
	resolutionLatency map[string]*atomic.Int64
	resolutionLock    sync.Mutex

	// Keyed "provider/class".
	providerFailures map[string]*atomic.Int64
	failureLock      sync.Mutex
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime:         time.Now(),
		responseTimes:     make([]time.Duration, 0, 1000),
		resolutionWins:    make(map[string]*atomic.Int64),
		resolutionLatency: make(map[string]*atomic.Int64),
		providerFailures:  make(map[string]*atomic.Int64),
	}
	return m
}

func (m *Metrics) RecordRequest(success bool) {
	m.requestsTotal.Add(1)
	if success {
		m.requestsSuccess.Add(1)
	} else {
		m.requestsFailed.Add(1)
	}
}

func (m *Metrics) RecordResolution(capability, provider string, latencyMs int64) {
	m.resolutionLock.Lock()
	defer m.resolutionLock.Unlock()

	key := capability + "/" + provider
	if m.resolutionWins[key] == nil {
		m.resolutionWins[key] = &atomic.Int64{}
		m.resolutionLatency[key] = &atomic.Int64{}
	}
	m.resolutionWins[key].Add(1)
	m.resolutionLatency[key].Add(latencyMs)
}

func (m *Metrics) RecordProviderFailure(provider, class string) {
	m.failureLock.Lock()
	defer m.failureLock.Unlock()

	key := provider + "/" + class
	if m.providerFailures[key] == nil {
		m.providerFailures[key] = &atomic.Int64{}
	}
	m.providerFailures[key].Add(1)
}

func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

func (m *Metrics) RecordAnalysisRepaired() {
	m.analysisRepaired.Add(1)
}

func (m *Metrics) RecordResponseTime(d time.Duration) {
	m.responseTimesLock.Lock()
	defer m.responseTimesLock.Unlock()

	m.responseTimes = append(m.responseTimes, d)
	if len(m.responseTimes) > 1000 {
		m.responseTimes = m.responseTimes[1:]
	}
}

func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Add(1)
}

func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Add(-1)
}

type Snapshot struct {
	Uptime            time.Duration    `json:"uptime"`
	RequestsTotal     int64            `json:"requests_total"`
	RequestsSuccess   int64            `json:"requests_success"`
	RequestsFailed    int64            `json:"requests_failed"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	AnalysisRepaired  int64            `json:"analysis_repaired"`
	ActiveConnections int64            `json:"active_connections"`
	AvgResponseTime   time.Duration    `json:"avg_response_time"`
	P99ResponseTime   time.Duration    `json:"p99_response_time"`
	ResolutionWins    map[string]int64 `json:"resolution_wins"`
	ProviderFailures  map[string]int64 `json:"provider_failures"`
	SuccessRate       float64          `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:            time.Since(m.startTime),
		RequestsTotal:     m.requestsTotal.Load(),
		RequestsSuccess:   m.requestsSuccess.Load(),
		RequestsFailed:    m.requestsFailed.Load(),
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
		AnalysisRepaired:  m.analysisRepaired.Load(),
		ActiveConnections: m.activeConnections.Load(),
		ResolutionWins:    make(map[string]int64),
		ProviderFailures:  make(map[string]int64),
	}

	if s.RequestsTotal > 0 {
		s.SuccessRate = float64(s.RequestsSuccess) / float64(s.RequestsTotal) * 100
	}

	m.responseTimesLock.Lock()
	if len(m.responseTimes) > 0 {
		var total time.Duration
		for _, rt := range m.responseTimes {
			total += rt
		}
		s.AvgResponseTime = total / time.Duration(len(m.responseTimes))

		sorted := make([]time.Duration, len(m.responseTimes))
		copy(sorted, m.responseTimes)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p99Index := int(float64(len(sorted)) * 0.99)
		if p99Index >= len(sorted) {
			p99Index = len(sorted) - 1
		}
		s.P99ResponseTime = sorted[p99Index]
	}
	m.responseTimesLock.Unlock()

	m.resolutionLock.Lock()
	for k, v := range m.resolutionWins {
		s.ResolutionWins[k] = v.Load()
	}
	m.resolutionLock.Unlock()

	m.failureLock.Lock()
	for k, v := range m.providerFailures {
		s.ProviderFailures[k] = v.Load()
	}
	m.failureLock.Unlock()

	return s
}

var (
	descUptime = prometheus.NewDesc(
		"docproc_uptime_seconds",
		"Time since process start.",
		nil, nil)
	descRequests = prometheus.NewDesc(
		"docproc_requests_total",
		"Pipeline requests by outcome.",
		[]string{"outcome"}, nil)
	descResolutions = prometheus.NewDesc(
		"docproc_resolutions_total",
		"Successful resolutions by capability and winning provider.",
		[]string{"capability", "provider"}, nil)
	descResolutionLatency = prometheus.NewDesc(
		"docproc_resolution_latency_ms_total",
		"Cumulative winning-provider latency in milliseconds.",
		[]string{"capability", "provider"}, nil)
	descFailures = prometheus.NewDesc(
		"docproc_provider_failures_total",
		"Failed provider attempts by failure class.",
		[]string{"provider", "class"}, nil)
	descCache = prometheus.NewDesc(
		"docproc_cache_lookups_total",
		"Result cache lookups by outcome.",
		[]string{"outcome"}, nil)
	descRepairs = prometheus.NewDesc(
		"docproc_analysis_repairs_total",
		"Analysis responses that needed JSON repair before parsing.",
		nil, nil)
	descConnections = prometheus.NewDesc(
		"docproc_active_connections",
		"Open websocket connections.",
		nil, nil)
)

// collector bridges the in-process counters into a Prometheus registry so
// the same numbers back both the stats API and the scrape endpoint.
type collector struct {
	m *Metrics
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descUptime
	ch <- descRequests
	ch <- descResolutions
	ch <- descResolutionLatency
	ch <- descFailures
	ch <- descCache
	ch <- descRepairs
	ch <- descConnections
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	m := c.m

	ch <- prometheus.MustNewConstMetric(descUptime, prometheus.GaugeValue, time.Since(m.startTime).Seconds())
	ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(m.requestsSuccess.Load()), "success")
	ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(m.requestsFailed.Load()), "failure")
	ch <- prometheus.MustNewConstMetric(descCache, prometheus.CounterValue, float64(m.cacheHits.Load()), "hit")
	ch <- prometheus.MustNewConstMetric(descCache, prometheus.CounterValue, float64(m.cacheMisses.Load()), "miss")
	ch <- prometheus.MustNewConstMetric(descRepairs, prometheus.CounterValue, float64(m.analysisRepaired.Load()))
	ch <- prometheus.MustNewConstMetric(descConnections, prometheus.GaugeValue, float64(m.activeConnections.Load()))

	m.resolutionLock.Lock()
	for key, wins := range m.resolutionWins {
		capability, provider, ok := splitKey(key)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(descResolutions, prometheus.CounterValue,
			float64(wins.Load()), capability, provider)
		if lat := m.resolutionLatency[key]; lat != nil {
			ch <- prometheus.MustNewConstMetric(descResolutionLatency, prometheus.CounterValue,
				float64(lat.Load()), capability, provider)
		}
	}
	m.resolutionLock.Unlock()

	m.failureLock.Lock()
	for key, count := range m.providerFailures {
		provider, class, ok := splitKey(key)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(descFailures, prometheus.CounterValue,
			float64(count.Load()), provider, class)
	}
	m.failureLock.Unlock()
}

func splitKey(key string) (string, string, bool) {
	i := strings.IndexByte(key, '/')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Collector returns a Prometheus collector backed by these counters.
func (m *Metrics) Collector() prometheus.Collector {
	return &collector{m: m}
}

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// Registry returns the process registry: the pipeline collector plus the
// standard Go runtime collector.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(Default().Collector())
	})
	return registry
}

// Handler serves the Prometheus exposition format for Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

func RecordRequest(success bool) {
	Default().RecordRequest(success)
}

func RecordResolution(capability, provider string, latencyMs int64) {
	Default().RecordResolution(capability, provider, latencyMs)
}

func RecordProviderFailure(provider, class string) {
	Default().RecordProviderFailure(provider, class)
}

func RecordCacheHit() {
	Default().RecordCacheHit()
}

func RecordCacheMiss() {
	Default().RecordCacheMiss()
}

func RecordAnalysisRepaired() {
	Default().RecordAnalysisRepaired()
}

func RecordResponseTime(d time.Duration) {
	Default().RecordResponseTime(d)
}

func IncrementActiveConnections() {
	Default().IncrementActiveConnections()
}

func DecrementActiveConnections() {
	Default().DecrementActiveConnections()
}
