package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/convinceme/convince-server-go/internal/model"
)

type ConvincerRepository interface {
	FindByID(ctx context.Context, id string) (*model.Convincer, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Convincer, error)
	FindByEmail(ctx context.Context, email string) (*model.Convincer, error)
	Create(ctx context.Context, params model.CreateConvincerParams) (*model.Convincer, error)
}

type convincerRepo struct {
	db queryer
}

func NewConvincerRepository(db *sqlx.DB) ConvincerRepository {
	return &convincerRepo{db: db}
}

func (r *convincerRepo) FindByID(ctx context.Context, id string) (*model.Convincer, error) {
	var convincer model.Convincer
	err := r.db.GetContext(ctx, &convincer, `SELECT * FROM convincers WHERE id = $1`, id)
	return HandleNotFound(&convincer, err)
}

func (r *convincerRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Convincer, error) {
	var convincer model.Convincer
	err := r.db.GetContext(ctx, &convincer, `
		SELECT * FROM convincers
		WHERE api_token_hash = $1 AND status = 'active'
	`, tokenHash)
	return HandleNotFound(&convincer, err)
}

func (r *convincerRepo) FindByEmail(ctx context.Context, email string) (*model.Convincer, error) {
	var convincer model.Convincer
	err := r.db.GetContext(ctx, &convincer, `SELECT * FROM convincers WHERE email = $1`, email)
	return HandleNotFound(&convincer, err)
}

func (r *convincerRepo) Create(ctx context.Context, params model.CreateConvincerParams) (*model.Convincer, error) {
	var convincer model.Convincer
	err := r.db.GetContext(ctx, &convincer, `
		INSERT INTO convincers (name, email, status, api_token_hash)
		VALUES ($1, $2, 'active', $3)
		RETURNING *
	`, params.Name, params.Email, params.APITokenHash)
	if err != nil {
		return nil, err
	}
	return &convincer, nil
}
