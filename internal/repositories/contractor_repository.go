package repositories

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"fielddispatch/internal/models"
)

// ContractorRepository reads contractor profiles; account management lives in
// a separate system, this core only validates claim eligibility.
type ContractorRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Contractor, error)
}

type contractorRepository struct {
	db *sql.DB
}

func NewContractorRepository(db *sql.DB) ContractorRepository {
	return &contractorRepository{db: db}
}

func (r *contractorRepository) FindByID(ctx context.Context, id int64) (*models.Contractor, error) {
	query := `SELECT id, name, email, skills, is_active, is_verified, created_at
		FROM contractors WHERE id = $1`
	c := &models.Contractor{}
	var skills pq.StringArray
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &skills, &c.IsActive, &c.IsVerified, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.Skills = []string(skills)
	return c, nil
}
