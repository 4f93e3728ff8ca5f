package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/models"
	pkgkafka "FinRange/pkg/kafka"
	"FinRange/pkg/util"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(pkgkafka.NewProducerWithWriter(w, "none", nil),
		PublisherTopics{Records: "finrange.records", Weekly: "finrange.weekly"})
	ctx := context.Background()

	require.NoError(t, p.PublishRecord(ctx, *sampleRecord()))
	require.NoError(t, p.PublishWeekly(ctx, models.WeeklyExpectedMoves{Symbol: "NQ", WeekStart: util.Date(2025, 10, 20)}))
	require.Len(t, w.msgs, 2)

	require.Equal(t, "finrange.records", w.msgs[0].Topic)
	require.Equal(t, "ES", string(w.msgs[0].Key))
	require.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	require.Equal(t, EventRecordCreated, string(w.msgs[0].Headers[0].Value))

	var rec models.ExpectedMoveRecord
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &rec))
	require.Equal(t, 6595.25, rec.LastPrice)

	require.Equal(t, "finrange.weekly", w.msgs[1].Topic)
	require.Equal(t, "NQ", string(w.msgs[1].Key))
}
