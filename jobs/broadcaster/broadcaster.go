package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"fenrir/infra/outbox"
)

// Broadcaster drains the settlement outbox onto the transaction
// topic with at-least-once delivery. Records survive restarts in
// SENT state and are retried until acked.
type Broadcaster struct {
	relay    *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	relay *outbox.Outbox,
	brokers []string,
	topic string,
	interval time.Duration,
	log *zap.Logger,
) (*Broadcaster, error) {

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		relay:    relay,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log.Named("broadcaster"),
	}, nil
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("started")

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				_ = b.producer.Close()
				return

			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// ------------------------------------------------
// DRAIN LOGIC
// ------------------------------------------------

func (b *Broadcaster) drainOnce() {
	err := b.relay.ScanPending(func(rec *outbox.Record) error {
		if err := b.relay.MarkSent(rec.Key); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.ByteEncoder(rec.Key),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed", zap.Error(err))
			return b.relay.MarkFailed(rec.Key)
		}

		return b.relay.MarkAcked(rec.Key)
	})
	if err != nil {
		b.log.Warn("outbox scan failed", zap.Error(err))
		return
	}

	_ = b.relay.TruncateAcked()
}
