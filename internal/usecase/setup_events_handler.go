package usecase

import (
	"context"
	"encoding/json"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	pkgkafka "SwingScan/pkg/kafka"
)

// SetupEventsHandler consumes setup events from Kafka and archives them to
// ClickHouse. Used when the backend is "kafka" and a consumer is enabled, so
// the history endpoint still has data to query.
type SetupEventsHandler struct {
	topic   string
	archive domrepo.SignalArchive
	metrics domrepo.Metrics
}

func NewSetupEventsHandler(topic string, archive domrepo.SignalArchive, metrics domrepo.Metrics) *SetupEventsHandler {
	return &SetupEventsHandler{topic: topic, archive: archive, metrics: metrics}
}

func (h *SetupEventsHandler) Topic() string { return h.topic }

func (h *SetupEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.SetupEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if err := h.archive.Store(ctx, &ev); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*SetupEventsHandler)(nil)
