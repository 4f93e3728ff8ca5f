package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	domrepo "FinRange/internal/domain/repository"
	pkgkafka "FinRange/pkg/kafka"
	applogger "FinRange/pkg/logger"
	"FinRange/pkg/util"
)

// SettlementHandler consumes realized closes from Kafka.
type SettlementHandler struct {
	topic   string
	settler *Settler
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewSettlementHandler(topic string, settler *Settler, metrics domrepo.Metrics, log *applogger.Logger) *SettlementHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &SettlementHandler{topic: topic, settler: settler, metrics: metrics, log: log.Component("settlement_consumer")}
}

func (h *SettlementHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, date: YYYY-MM-DD, close}
func (h *SettlementHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		Date   string  `json:"date"`
		Close  float64 `json:"close"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode settlement: %v: %w", err, pkgkafka.ErrPermanent)
	}
	date, ok := util.ParseDate(m.Date)
	if !ok {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("settlement date %q: %w", m.Date, pkgkafka.ErrPermanent)
	}

	_, err := h.settler.Apply(ctx, models.Settlement{Symbol: m.Symbol, Date: date, Close: m.Close})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrAlreadySettled):
		// redelivery after a successful write
		h.log.Debug("settlement already applied", applogger.String("symbol", m.Symbol), applogger.String("date", m.Date))
		return nil
	case errors.Is(err, errs.ErrBusy):
		// another writer holds the row; leave the message for a retry
		h.log.Debug("settlement busy", applogger.String("symbol", m.Symbol), applogger.String("date", m.Date))
		return err
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrNotFound):
		h.metrics.RecordError("settlement_rejected")
		return fmt.Errorf("%v: %w", err, pkgkafka.ErrPermanent)
	default:
		h.metrics.RecordError("settlement_store")
		return err
	}
}

var _ pkgkafka.MessageHandler = (*SettlementHandler)(nil)
