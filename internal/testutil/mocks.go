package testutil

import (
	"attendees/internal/providers"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (e LogEntry) Message() string {
	return fmt.Sprintf(e.Format, e.Args...)
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level whose message contains substr.
func (m *MockLogger) Count(level, substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Logs {
		if e.Level == level && strings.Contains(e.Message(), substr) {
			n++
		}
	}
	return n
}

// MockMetrics implements providers.MetricsProviderInterface.
type MockMetrics struct {
	mu                   sync.Mutex
	RemoteFailures       map[string]int
	FanOuts              map[string]int
	CacheHits            int
	CacheMisses          int
	PersistCalls         int
	NotificationsDropped int
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}

func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}

func (m *MockMetrics) ObservePersistenceDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistCalls++
}

func (m *MockMetrics) IncRemoteCallFailures(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoteFailures == nil {
		m.RemoteFailures = make(map[string]int)
	}
	m.RemoteFailures[operation]++
}

func (m *MockMetrics) ObserveFanOutDuration(operation string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FanOuts == nil {
		m.FanOuts = make(map[string]int)
	}
	m.FanOuts[operation]++
}

func (m *MockMetrics) IncNotificationsDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationsDropped++
}

func (m *MockMetrics) Failures(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RemoteFailures[operation]
}

// MockCache implements providers.CacheProviderInterface on a plain map.
type MockCache struct {
	mu     sync.Mutex
	Data   map[string][]byte
	Clears int
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Data[key]
	return v, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Data == nil {
		m.Data = make(map[string][]byte)
	}
	m.Data[key] = value
}

func (m *MockCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data = nil
	m.Clears++
}
