package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecociel/taskmanager/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx the repo needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const columns = `id, title, description, due_date, status, created_by, assigned_to, created_at`

type taskRow struct {
	ID          uuid.UUID  `db:"id"`
	Title       string     `db:"title"`
	Description *string    `db:"description"`
	DueDate     *time.Time `db:"due_date"`
	Status      string     `db:"status"`
	CreatedBy   string     `db:"created_by"`
	AssignedTo  string     `db:"assigned_to"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r taskRow) toTask() domain.Task {
	return domain.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		Status:      r.Status,
		CreatedBy:   r.CreatedBy,
		AssignedTo:  r.AssignedTo,
		CreatedAt:   r.CreatedAt,
	}
}

// PostgresRepo owns the tasks table. All statements bind their values as
// parameters.
type PostgresRepo struct {
	db    DBTX
	now   func() time.Time
	newID func() uuid.UUID
}

func NewPostgresRepo(db DBTX) *PostgresRepo {
	return &PostgresRepo{db: db, now: time.Now, newID: uuid.New}
}

func (repo *PostgresRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Task, error) {
	q := newSelect(`SELECT ` + columns + ` FROM tasks`).order(`created_at DESC, seq DESC`)
	if statuses := filter.NormalizedStatuses(); len(statuses) > 0 {
		q.where(statusIn(statuses))
	}
	if filter.Search != "" {
		q.where(titleOrAssigneeContains(filter.Search))
	}
	stmt, args := q.render()

	rows, err := repo.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[taskRow])
	if err != nil {
		return nil, fmt.Errorf("rows tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(found))
	for _, r := range found {
		tasks = append(tasks, r.toTask())
	}
	return tasks, nil
}

func (repo *PostgresRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Task, bool, error) {
	const q = `SELECT ` + columns + ` FROM tasks WHERE id = $1`
	return repo.one(ctx, "get task", id, q, id)
}

// Create stores a new task. The id and creation time are assigned here, and
// the returned task is the row as written.
func (repo *PostgresRepo) Create(ctx context.Context, cmd domain.CreateCommand) (domain.Task, error) {
	const q = `
        INSERT INTO tasks
          (id, title, description, due_date, status, created_by, assigned_to, created_at)
        VALUES
          ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + columns
	id := repo.newID()
	createdAt := repo.now().UTC().Truncate(time.Microsecond)
	task, ok, err := repo.one(ctx, "insert task", id, q,
		id, cmd.Title, cmd.Description, cmd.DueDate, cmd.Status, cmd.CreatedBy, cmd.AssignedTo, createdAt)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fmt.Errorf("insert task %s: no row returned", id)
	}
	return task, nil
}

// Update replaces the mutable fields of task id. It reports false and writes
// nothing if the task does not exist.
func (repo *PostgresRepo) Update(ctx context.Context, id uuid.UUID, cmd domain.UpdateCommand) (domain.Task, bool, error) {
	const q = `
        UPDATE tasks
        SET title = $2, description = $3, due_date = $4, status = $5, assigned_to = $6
        WHERE id = $1
        RETURNING ` + columns
	return repo.one(ctx, "update task", id, q,
		id, cmd.Title, cmd.Description, cmd.DueDate, cmd.Status, cmd.AssignedTo)
}

func (repo *PostgresRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
      DELETE FROM tasks WHERE id = $1`
	tag, err := repo.db.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (repo *PostgresRepo) one(ctx context.Context, op string, id uuid.UUID, q string, args ...any) (domain.Task, bool, error) {
	rows, err := repo.db.Query(ctx, q, args...)
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("%s %s: %w", op, id, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[taskRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return row.toTask(), true, nil
}
