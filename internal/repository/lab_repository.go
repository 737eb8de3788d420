package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lab-timetable-api/internal/models"
)

const labColumns = "id, name, capacity, created_at, updated_at"

// LabRepository provides persistence for labs.
type LabRepository struct {
	db *sqlx.DB
}

// NewLabRepository creates a new lab repository.
func NewLabRepository(db *sqlx.DB) *LabRepository {
	return &LabRepository{db: db}
}

// List returns labs with optional name search and pagination.
func (r *LabRepository) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error) {
	base := "FROM labs WHERE 1=1"
	var args []interface{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		base += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC LIMIT %d OFFSET %d", labColumns, base, size, offset)
	var labs []models.Lab
	if err := r.db.SelectContext(ctx, &labs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list labs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count labs: %w", err)
	}
	return labs, total, nil
}

// FindByID loads a lab by id.
func (r *LabRepository) FindByID(ctx context.Context, id int64) (*models.Lab, error) {
	var lab models.Lab
	if err := r.db.GetContext(ctx, &lab, "SELECT "+labColumns+" FROM labs WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &lab, nil
}

// Create stores a new lab and fills its generated id.
func (r *LabRepository) Create(ctx context.Context, lab *models.Lab) error {
	now := time.Now().UTC()
	lab.CreatedAt = now
	lab.UpdatedAt = now
	const query = `INSERT INTO labs (name, capacity, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, lab.Name, lab.Capacity, lab.CreatedAt, lab.UpdatedAt).Scan(&lab.ID); err != nil {
		return fmt.Errorf("create lab: %w", err)
	}
	return nil
}

// Update modifies a lab record.
func (r *LabRepository) Update(ctx context.Context, lab *models.Lab) error {
	lab.UpdatedAt = time.Now().UTC()
	const query = `UPDATE labs SET name = :name, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, lab)
	if err != nil {
		return fmt.Errorf("update lab: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a lab. Its sessions go with it through the foreign key.
func (r *LabRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM labs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lab: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
