package kafkapub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission"
)

func event(token uint64) submission.SubmissionEvent {
	return submission.SubmissionEvent{
		Version:     submission.Version,
		SessionID:   "sess-1",
		Token:       token,
		Fingerprint: "00000000000000aa",
		Request: model.RequestSnapshot{
			Input:       "pizza",
			Restriction: model.RectangleShape(model.Rectangle{High: model.GeoPoint{Latitude: 1, Longitude: 1}}),
		},
		TS: time.Unix(1700000000, 0).UTC(),
	}
}

func TestPublish_SendsKeyedMessageWithHeaders(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, nil)
	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "subs" {
			return fmt.Errorf("topic=%s", m.Topic)
		}
		k, _ := m.Key.Encode()
		if string(k) != "sess-1" {
			return fmt.Errorf("key=%s", k)
		}
		v, _ := m.Value.Encode()
		var got submission.SubmissionEvent
		if err := json.Unmarshal(v, &got); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if got.Token != 4 || got.Request.Restriction.IsNone() {
			return fmt.Errorf("payload=%+v", got)
		}
		if len(m.Headers) != 2 || string(m.Headers[0].Value) != "4" {
			return fmt.Errorf("headers=%v", m.Headers)
		}
		return nil
	})

	p := NewWithProducer(prod, "subs", 4, nil)
	if err := p.Publish(context.Background(), event(4)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_RejectsInvalid(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, nil)
	p := NewWithProducer(prod, "subs", 4, nil)
	defer func() { _ = p.Close() }()

	bad := event(0)
	if err := p.Publish(context.Background(), bad); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPublish_FullQueueDrops(t *testing.T) {
	// nothing drains the queue: the feeder blocks on the unbuffered input of a stub producer
	stub := &blockedProducer{input: make(chan *sarama.ProducerMessage), errs: make(chan *sarama.ProducerError)}
	p := NewWithProducer(stub, "subs", 1, nil)

	var full bool
	for i := 1; i <= 5; i++ {
		if err := p.Publish(context.Background(), event(uint64(i))); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatalf("expected ErrQueueFull with a stalled producer")
	}

	go func() {
		for range stub.input {
		}
	}()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

type blockedProducer struct {
	sarama.AsyncProducer
	input chan *sarama.ProducerMessage
	errs  chan *sarama.ProducerError
}

func (b *blockedProducer) Input() chan<- *sarama.ProducerMessage { return b.input }
func (b *blockedProducer) Errors() <-chan *sarama.ProducerError  { return b.errs }
func (b *blockedProducer) Close() error {
	close(b.input)
	close(b.errs)
	return nil
}
