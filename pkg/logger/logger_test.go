package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).Component("scheduler").With(String("symbol", "ES"))
	l.Info("record created", Float64("move", 10.18), Date("date", time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC)))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "scheduler", entry["component"])
	require.Equal(t, "ES", entry["symbol"])
	require.Equal(t, 10.18, entry["move"])
	require.Equal(t, "2025-10-17", entry["date"])
	require.Equal(t, "record created", entry["message"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Info("hidden")
	require.Zero(t, buf.Len())
	l.Warn("shown")
	require.NotZero(t, buf.Len())
}

func TestCollectorDeduplicatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	// built before the collector is attached
	child := l.Component("daily")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "errors", Publisher: pub})
	for i := 0; i < 3; i++ {
		child.Error("quote fetch failed", Error(errors.New("boom")))
	}
	require.Equal(t, 1, l.sink.get().Pending())
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	require.Equal(t, "errors", pub.topic)
	require.Equal(t, 3, pub.batches[0][0].Count)
	require.Equal(t, "boom", pub.batches[0][0].Fields["error"])
}

func TestNopIsSilent(t *testing.T) {
	l := Nop()
	l.Error("nothing", Int("n", 1))
	l.With(Bool("ok", true)).Warn("still nothing")
}
