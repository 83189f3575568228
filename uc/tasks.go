package uc

import (
	"context"
	"log"
	"time"

	"github.com/ecociel/taskmanager/domain"
	"github.com/ecociel/taskmanager/metrics"
	"github.com/google/uuid"
)

type Store interface {
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Task, bool, error)
	Create(ctx context.Context, cmd domain.CreateCommand) (domain.Task, error)
	Update(ctx context.Context, id uuid.UUID, cmd domain.UpdateCommand) (domain.Task, bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// EventPublisher is told about every change after it was written.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.TaskEvent) error
}

type ListTasksUseCase = func(ctx context.Context, filter domain.ListFilter) ([]domain.Task, error)
type GetTaskUseCase = func(ctx context.Context, id uuid.UUID) (domain.Task, bool, error)
type CreateTaskUseCase = func(ctx context.Context, cmd domain.CreateCommand) (domain.Task, error)
type UpdateTaskUseCase = func(ctx context.Context, id uuid.UUID, cmd domain.UpdateCommand) (domain.Task, bool, error)
type DeleteTaskUseCase = func(ctx context.Context, id uuid.UUID) (bool, error)

// Tasks bundles the task use cases handed to the transport.
type Tasks struct {
	List   ListTasksUseCase
	Get    GetTaskUseCase
	Create CreateTaskUseCase
	Update UpdateTaskUseCase
	Delete DeleteTaskUseCase
}

// MakeTasks builds all task use cases. publisher may be nil.
func MakeTasks(store Store, publisher EventPublisher, m metrics.TaskMetrics) Tasks {
	return Tasks{
		List:   MakeListTasksUseCase(store, m),
		Get:    MakeGetTaskUseCase(store, m),
		Create: MakeCreateTaskUseCase(store, publisher, m),
		Update: MakeUpdateTaskUseCase(store, publisher, m),
		Delete: MakeDeleteTaskUseCase(store, publisher, m),
	}
}

func MakeListTasksUseCase(store Store, m metrics.TaskMetrics) ListTasksUseCase {
	return func(ctx context.Context, filter domain.ListFilter) ([]domain.Task, error) {
		start := time.Now()
		tasks, err := store.List(ctx, filter)
		m.StoreOp("list", time.Since(start), err)
		return tasks, err
	}
}

func MakeGetTaskUseCase(store Store, m metrics.TaskMetrics) GetTaskUseCase {
	return func(ctx context.Context, id uuid.UUID) (domain.Task, bool, error) {
		start := time.Now()
		task, ok, err := store.GetByID(ctx, id)
		m.StoreOp("get", time.Since(start), err)
		return task, ok, err
	}
}

func MakeCreateTaskUseCase(store Store, publisher EventPublisher, m metrics.TaskMetrics) CreateTaskUseCase {
	n := notifier{publisher: publisher, m: m, now: time.Now}
	return func(ctx context.Context, cmd domain.CreateCommand) (domain.Task, error) {
		start := time.Now()
		task, err := store.Create(ctx, cmd)
		m.StoreOp("create", time.Since(start), err)
		if err != nil {
			return domain.Task{}, err
		}
		n.notify(ctx, domain.EventCreated, task.ID, &task)
		return task, nil
	}
}

func MakeUpdateTaskUseCase(store Store, publisher EventPublisher, m metrics.TaskMetrics) UpdateTaskUseCase {
	n := notifier{publisher: publisher, m: m, now: time.Now}
	return func(ctx context.Context, id uuid.UUID, cmd domain.UpdateCommand) (domain.Task, bool, error) {
		start := time.Now()
		task, ok, err := store.Update(ctx, id, cmd)
		m.StoreOp("update", time.Since(start), err)
		if err != nil || !ok {
			return task, ok, err
		}
		n.notify(ctx, domain.EventUpdated, id, &task)
		return task, true, nil
	}
}

func MakeDeleteTaskUseCase(store Store, publisher EventPublisher, m metrics.TaskMetrics) DeleteTaskUseCase {
	n := notifier{publisher: publisher, m: m, now: time.Now}
	return func(ctx context.Context, id uuid.UUID) (bool, error) {
		start := time.Now()
		deleted, err := store.Delete(ctx, id)
		m.StoreOp("delete", time.Since(start), err)
		if err != nil || !deleted {
			return deleted, err
		}
		n.notify(ctx, domain.EventDeleted, id, nil)
		return true, nil
	}
}

type notifier struct {
	publisher EventPublisher
	m         metrics.TaskMetrics
	now       func() time.Time
}

// notify publishes a change event. The change is already stored, so a failed
// publish is only logged.
func (n notifier) notify(ctx context.Context, kind domain.EventKind, id uuid.UUID, task *domain.Task) {
	if n.publisher == nil {
		return
	}
	event := domain.TaskEvent{Kind: kind, TaskID: id, Task: task, At: n.now().UTC()}
	err := n.publisher.Publish(ctx, event)
	n.m.EventPublished(err)
	if err != nil {
		log.Printf("publish %s event for task %s: %v", kind, id, err)
	}
}
