// Package kafkaconsumer applies ResponseEvents from Kafka to live editing
// sessions. Each (session, token) is applied at most once and never after a
// newer token for the same session.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	mylog "github.com/mohammed-shakir/geofilter-editor/internal/logger"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission"
)

// ResponseSink delivers a response to its session. Sinks report unknown
// sessions and stale tokens as errors; neither is retried.
type ResponseSink interface {
	DeliverResponse(ctx context.Context, ev submission.ResponseEvent) error
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	sink    ResponseSink
	dedupe  *tokenDedupe
	handler *groupHandler
	zlog    *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, sink ResponseSink) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	zl := mylog.Build(mylog.Config{Level: "info", Component: "kafka_consumer"}, nil)
	c := &Consumer{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		dedupe: newTokenDedupe(cfg.DedupeSize),
		zlog:   &zl,
	}
	c.handler = &groupHandler{process: c.ProcessOne}
	return c
}

// Readiness reports whether partitions are currently assigned.
func (c *Consumer) Readiness() (bool, []int32) {
	parts := c.handler.assigned()
	return len(parts) > 0, parts
}

// Forget drops dedupe state for a deleted session.
func (c *Consumer) Forget(session string) { c.dedupe.forget(session) }

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.sink == nil {
		return errors.New("kafkaconsumer: missing response sink")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	c.logger.Info("kafka response consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka response consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, c.handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single response message. Undecodable, invalid, stale
// and orphaned responses are counted and skipped; only sink failures other
// than those are returned.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	defer func() { obs.ObserveResponseProcessing(time.Since(start)) }()

	var ev submission.ResponseEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafka("consume", "decode_error")
		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafka("consume", "invalid")
		c.logger.Warn("invalid response event", "err", err, "offset", msg.Offset)
		return nil
	}
	if !c.dedupe.shouldApply(ev.SessionID, ev.Token) {
		obs.IncKafka("consume", "duplicate")
		c.logger.Debug("duplicate or superseded response", "session_id", ev.SessionID, "token", ev.Token)
		return nil
	}

	if err := c.sink.DeliverResponse(ctx, ev); err != nil {
		if errors.Is(err, ErrSkip) {
			obs.IncKafka("consume", "skipped")
			c.logger.Debug("response not applied", "session_id", ev.SessionID, "token", ev.Token, "err", err)
			return nil
		}
		obs.IncKafka("consume", "error")
		return fmt.Errorf("deliver response: %w", err)
	}

	obs.IncKafka("consume", "applied")
	mylog.FromContext(ctx, c.zlog).Debug().
		Str("event", "response").
		Str("session_id", ev.SessionID).
		Uint64("token", ev.Token).
		Msg("response applied")
	return nil
}

// ErrSkip marks a delivery failure that must not stop the partition, e.g. a
// session that no longer exists or a stale token.
var ErrSkip = errors.New("response skipped")
