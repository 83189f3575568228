package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ecociel/taskmanager/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer defines the interface for producing messages to Kafka
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes task change events to a topic. Records are keyed by task
// id so all events of one task land on the same partition in order.
type Publisher struct {
	client Producer
	topic  string
}

func NewPublisher(client Producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, event domain.TaskEvent) error {
	record, err := eventToRec(p.topic, event)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Kind, err)
	}
	return nil
}

func eventToRec(topic string, event domain.TaskEvent) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("serialize %s event: %w", event.Kind, err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.TaskID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: domain.HeaderKind, Value: []byte(event.Kind)},
		},
	}, nil
}
