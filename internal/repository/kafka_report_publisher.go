package repository

import (
	"context"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
	pkgkafka "HisCollect/pkg/kafka"
)

// KafkaReportPublisher implements ReportPublisher for Kafka.
type KafkaReportPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.ReportPublisher = (*KafkaReportPublisher)(nil)

func NewKafkaReportPublisher(producer *pkgkafka.Producer, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

// Publish keys by collection id so retries of one collection stay ordered.
func (p *KafkaReportPublisher) Publish(ctx context.Context, r models.CollectionReport) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.ID), r)
}

func (p *KafkaReportPublisher) Close() error {
	return p.producer.Close()
}

// NopReportPublisher drops reports when publishing is disabled.
type NopReportPublisher struct{}

func (NopReportPublisher) Publish(context.Context, models.CollectionReport) error { return nil }
func (NopReportPublisher) Close() error                                           { return nil }
