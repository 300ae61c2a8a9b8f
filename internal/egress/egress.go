// Package egress delivers finished execution signals to the external
// execution collaborator. The Kafka path is the production one; the log
// path keeps single-node deployments running without a broker.
package egress

import (
	"context"

	"TradeFloor/internal/domain/models"
	"TradeFloor/pkg/kafka"
	"TradeFloor/pkg/logger"
)

// Publisher hands an execution signal to the downstream executor.
type Publisher interface {
	PublishExecution(ctx context.Context, sig *models.ExecutionSignal) error
	Close() error
}

// KafkaPublisher publishes execution signals to a Kafka topic, keyed by
// ticker so one symbol's signals stay ordered on one partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	lgr      *logger.Logger
}

// NewKafkaPublisher creates the Kafka egress path.
func NewKafkaPublisher(producer *kafka.Producer, topic string, lgr *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, lgr: lgr}
}

func (p *KafkaPublisher) PublishExecution(ctx context.Context, sig *models.ExecutionSignal) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(sig.Ticker), sig); err != nil {
		return err
	}
	p.lgr.Debug("execution signal published",
		logger.String("topic", p.topic),
		logger.String("ticker", sig.Ticker),
	)
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }

// LogPublisher writes execution signals to the log instead of a broker.
type LogPublisher struct {
	lgr *logger.Logger
}

// NewLogPublisher creates the broker-less egress path.
func NewLogPublisher(lgr *logger.Logger) *LogPublisher {
	return &LogPublisher{lgr: lgr}
}

func (p *LogPublisher) PublishExecution(_ context.Context, sig *models.ExecutionSignal) error {
	p.lgr.Info("execution signal",
		logger.String("ticker", sig.Ticker),
		logger.String("action", string(sig.Action)),
		logger.Float64("position_size", sig.PositionSize),
		logger.Float64("max_loss", sig.MaxLoss),
		logger.Float64("confidence", sig.DirectorConfidence),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
