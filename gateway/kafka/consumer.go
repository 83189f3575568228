package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ecociel/taskmanager/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Poller is the consuming side of kgo.Client.
type Poller interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

type Handler func(ctx context.Context, event domain.TaskEvent) error

// Consumer reads task change events and dispatches them by kind.
// Consumers in the same group can be run in parallel.
type Consumer struct {
	client   Poller
	handlers map[domain.EventKind]Handler
}

func NewConsumer(client Poller) *Consumer {
	return &Consumer{client: client, handlers: make(map[domain.EventKind]Handler)}
}

func (c *Consumer) RegisterHandler(kind domain.EventKind, hdl Handler) {
	c.handlers[kind] = hdl
}

// Run polls until ctx is done or the client is closed. Records are committed
// after their handler ran, also when it failed.
func (c *Consumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			log.Println("consuming client closed, returning")
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				log.Printf("fetch err topic %s partition %d: %v", e.Topic, e.Partition, e.Err)
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
			if err := c.client.CommitRecords(ctx, record); err != nil {
				log.Printf("commit record at offset %d: %v", record.Offset, err)
			}
		})
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) {
	event, err := recToEvent(record)
	if err != nil {
		log.Printf("skip record at offset %d: %v", record.Offset, err)
		return
	}
	hdl, ok := c.handlers[event.Kind]
	if !ok {
		return
	}
	if err := hdl(ctx, event); err != nil {
		log.Printf("handle %s/%s: %v", event.Kind, event.TaskID, err)
	}
}

func recToEvent(rec *kgo.Record) (domain.TaskEvent, error) {
	var event domain.TaskEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return domain.TaskEvent{}, fmt.Errorf("decode event: %w", err)
	}
	for i := range rec.Headers {
		if rec.Headers[i].Key == domain.HeaderKind {
			event.Kind = domain.EventKind(rec.Headers[i].Value)
		}
	}
	return event, nil
}
