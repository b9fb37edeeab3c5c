package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
	pkgkafka "HisCollect/pkg/kafka"
)

// KafkaFactsHandler consumes fact envelopes and upserts them.
type KafkaFactsHandler struct {
	topic   string
	store   domrepo.FactStore
	metrics domrepo.Metrics
}

func NewKafkaFactsHandler(topic string, store domrepo.FactStore, metrics domrepo.Metrics) *KafkaFactsHandler {
	return &KafkaFactsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaFactsHandler) Topic() string { return h.topic }

// incoming message schema: {market, category, fact}
func (h *KafkaFactsHandler) Handle(ctx context.Context, b []byte) error {
	var env models.FactEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("%w: %v", models.ErrMalformedFact, err))
	}
	f, err := env.Decode()
	if err != nil {
		h.metrics.RecordError("malformed_fact")
		return pkgkafka.Permanent(err)
	}

	start := time.Now()
	err = h.store.Upsert(ctx, env.Market, f)
	h.metrics.RecordLatency("fact_upsert", time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, models.ErrMalformedFact) {
			h.metrics.RecordError("malformed_fact")
			return pkgkafka.Permanent(err)
		}
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordFactUpserted(string(f.Category()))
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaFactsHandler)(nil)
