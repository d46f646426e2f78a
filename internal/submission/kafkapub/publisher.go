// Package kafkapub publishes accepted submissions to Kafka for the
// downstream request collaborator.
package kafkapub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission"
)

var ErrQueueFull = errors.New("kafkapub: queue full")

type Publisher struct {
	topic   string
	events  chan submission.SubmissionEvent
	prod    sarama.AsyncProducer
	log     *slog.Logger
	stopped chan struct{}
	errDone chan struct{}
}

func New(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkapub: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, log), nil
}

// NewWithProducer wraps an existing producer; the Publisher owns it from here on.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan submission.SubmissionEvent, queueSize),
		prod:    prod,
		log:     log.With("component", "kafkapub", "topic", topic),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			msg, err := p.message(ev)
			if err != nil {
				obs.IncKafka("produce", "encode_error")
				p.log.Error("encode submission", "session_id", ev.SessionID, "token", ev.Token, "err", err)
				continue
			}
			p.prod.Input() <- msg
			obs.IncKafka("produce", "queued")
		}
	}()

	go func() {
		defer close(p.errDone)
		for perr := range p.prod.Errors() {
			if perr != nil {
				obs.IncKafka("produce", "error")
				p.log.Error("producer error", "err", perr.Err)
			}
		}
	}()

	return p
}

func (p *Publisher) message(ev submission.SubmissionEvent) (*sarama.ProducerMessage, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.SessionID),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("token"), Value: []byte(strconv.FormatUint(ev.Token, 10))},
			{Key: []byte("fingerprint"), Value: []byte(ev.Fingerprint)},
		},
	}, nil
}

// Publish validates and enqueues ev without blocking. A full queue drops the
// event and returns ErrQueueFull.
func (p *Publisher) Publish(_ context.Context, ev submission.SubmissionEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("kafkapub: invalid event: %w", err)
	}
	select {
	case p.events <- ev:
		return nil
	default:
		obs.IncKafka("produce", "dropped")
		return ErrQueueFull
	}
}

// Close drains the queue and closes the producer. Publish must not be called afterwards.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("kafkapub: close producer: %w", err)
	}
	return nil
}
