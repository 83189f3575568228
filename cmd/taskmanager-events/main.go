package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecociel/taskmanager/config"
	"github.com/ecociel/taskmanager/domain"
	"github.com/ecociel/taskmanager/gateway/kafka"
)

// Logs every task change published by taskmanager-api.
func main() {
	cfg, err := config.LoadConsumer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := kafka.NewConsumerClient(cfg.EventsHostPorts, cfg.EventsTopic, cfg.EventsGroup)
	if err != nil {
		log.Fatalf("kafka client: %v", err)
	}
	defer client.Close()

	c := kafka.NewConsumer(client)
	c.RegisterHandler(domain.EventCreated, logTask)
	c.RegisterHandler(domain.EventUpdated, logTask)
	c.RegisterHandler(domain.EventDeleted, func(_ context.Context, e domain.TaskEvent) error {
		log.Printf("task %s deleted at %s", e.TaskID, e.At.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	})

	log.Printf("consuming %s as %s", cfg.EventsTopic, cfg.EventsGroup)
	c.Run(ctx)
}

func logTask(_ context.Context, e domain.TaskEvent) error {
	if e.Task == nil {
		log.Printf("task %s %s", e.TaskID, e.Kind)
		return nil
	}
	log.Printf("task %s %s: %q status=%s assignedTo=%s", e.TaskID, e.Kind, e.Task.Title, e.Task.Status, e.Task.AssignedTo)
	return nil
}
