package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"fielddispatch/internal/models"
)

const taskColumns = `id, order_ref, type, priority, status, assignee_ids, assigned_to,
       lat, lng, address, scheduled_at, completed_at, completion_notes, photos,
       created_at, updated_at`

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	FindAvailable(ctx context.Context, filter models.AvailableFilter) ([]models.Task, int, error)
	FindAssigned(ctx context.Context, filter models.AssignedFilter) ([]models.Task, int, error)

	// ClaimPending is the single atomic conditional update behind claim:
	// it assigns the task to contractorID only if the row is still pending
	// and the contractor is not already an assignee. Returns false when the
	// condition no longer holds (a concurrent claim won).
	ClaimPending(ctx context.Context, id, contractorID int64) (bool, error)

	UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error
	Complete(ctx context.Context, id int64, notes string, photos []string, completedAt time.Time) error
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			order_ref, type, priority, status, assignee_ids, assigned_to,
			lat, lng, address, scheduled_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		task.OrderRef, task.Type, task.Priority, task.Status,
		pq.Array(task.AssigneeIDs), task.AssignedTo,
		task.Lat, task.Lng, task.Address, task.ScheduledAt,
		task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) FindAvailable(ctx context.Context, filter models.AvailableFilter) ([]models.Task, int, error) {
	if filter.Lat != nil && filter.Lng != nil {
		return r.findAvailableNear(ctx, filter)
	}

	conditions := []string{`status = 'pending'`, `cardinality(assignee_ids) = 0`}
	args := []interface{}{}
	argID := 1
	if len(filter.Types) > 0 {
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", argID))
		args = append(args, pq.Array(taskTypeStrings(filter.Types)))
		argID++
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where +
		fmt.Sprintf(" ORDER BY priority DESC, scheduled_at ASC LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	return tasks, total, err
}

// findAvailableNear orders pending tasks by haversine distance from the given
// point and drops rows outside the radius. Linear scan is fine at this scale;
// tasks without coordinates never match location searches.
func (r *taskRepository) findAvailableNear(ctx context.Context, filter models.AvailableFilter) ([]models.Task, int, error) {
	const distance = `(6371 * acos(least(1.0,
		cos(radians($1)) * cos(radians(lat)) * cos(radians(lng) - radians($2))
		+ sin(radians($1)) * sin(radians(lat)))))`

	conditions := []string{`status = 'pending'`, `lat IS NOT NULL`, `lng IS NOT NULL`, distance + ` <= $3`}
	args := []interface{}{*filter.Lat, *filter.Lng, filter.RadiusKm}
	argID := 4
	if len(filter.Types) > 0 {
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", argID))
		args = append(args, pq.Array(taskTypeStrings(filter.Types)))
		argID++
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where +
		fmt.Sprintf(" ORDER BY "+distance+" ASC LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	return tasks, total, err
}

func (r *taskRepository) FindAssigned(ctx context.Context, filter models.AssignedFilter) ([]models.Task, int, error) {
	conditions := []string{`(assignee_ids @> ARRAY[$1]::bigint[] OR assigned_to = $1)`}
	args := []interface{}{filter.ContractorID}
	argID := 2
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where +
		fmt.Sprintf(" ORDER BY scheduled_at ASC LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	return tasks, total, err
}

func (r *taskRepository) ClaimPending(ctx context.Context, id, contractorID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'assigned',
		    assignee_ids = array_append(assignee_ids, $2),
		    assigned_to = $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT (assignee_ids @> ARRAY[$2]::bigint[])`,
		id, contractorID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status=$1, updated_at=NOW() WHERE id=$2`, to, id)
	return err
}

func (r *taskRepository) Complete(ctx context.Context, id int64, notes string, photos []string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET status='completed', completed_at=$1, completion_notes=$2, photos=$3, updated_at=NOW()
		WHERE id=$4`,
		completedAt, notes, pq.Array(photos), id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var assignees pq.Int64Array
	var photos pq.StringArray
	err := row.Scan(
		&task.ID, &task.OrderRef, &task.Type, &task.Priority, &task.Status,
		&assignees, &task.AssignedTo,
		&task.Lat, &task.Lng, &task.Address, &task.ScheduledAt,
		&task.CompletedAt, &task.CompletionNotes, &photos,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.AssigneeIDs = []int64(assignees)
	task.Photos = []string(photos)
	return task, nil
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func taskTypeStrings(types []models.TaskType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
