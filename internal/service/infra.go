package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/learnhub/payment-reconciler/internal/models"
)

// Locker serializes writers for one attempt.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// StateChangePublisher emits ledger transitions to downstream consumers.
type StateChangePublisher interface {
	PublishStateChange(ctx context.Context, event models.StateChangedEvent) error
}

// ReconciliationAlerter carries grant failures to the operator channel.
type ReconciliationAlerter interface {
	AlertReconciliationFailure(ctx context.Context, alert models.ReconciliationAlert) error
}

// RedisLocker implements Locker with SET NX and a TTL so a crashed holder
// cannot wedge an attempt forever.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// KafkaStatePublisher writes state-changed events keyed by attempt id.
type KafkaStatePublisher struct {
	writer *kafka.Writer
}

func NewKafkaStatePublisher(writer *kafka.Writer) *KafkaStatePublisher {
	return &KafkaStatePublisher{writer: writer}
}

func (p *KafkaStatePublisher) PublishStateChange(ctx context.Context, event models.StateChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AttemptID),
		Value: payload,
	})
}

// NATSAlerter publishes reconciliation failures to the operator subject.
type NATSAlerter struct {
	nc      *nats.Conn
	subject string
}

func NewNATSAlerter(nc *nats.Conn, subject string) *NATSAlerter {
	return &NATSAlerter{nc: nc, subject: subject}
}

func (a *NATSAlerter) AlertReconciliationFailure(_ context.Context, alert models.ReconciliationAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return a.nc.Publish(a.subject, payload)
}
