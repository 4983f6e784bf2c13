package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"unkit-api/internal/domain"
)

// AccountRepository define el contrato de persistencia para cuentas.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	UpdateProfile(ctx context.Context, account domain.Account) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

const accountColumns = `
	id, email, username, password_hash,
	first_name, last_name, profile_picture_url, phone_number, bio, location,
	github_url, linkedin_url, portfolio_url,
	is_active, is_admin, language, timezone,
	created_at, updated_at, last_login_at
`

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

func (r *PgAccountRepository) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (
			id, email, username, password_hash,
			first_name, last_name, profile_picture_url, phone_number, bio, location,
			github_url, linkedin_url, portfolio_url,
			is_active, is_admin, language, timezone, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Email, a.Username, a.PasswordHash,
		a.FirstName, a.LastName, a.ProfilePictureURL, a.PhoneNumber, a.Bio, a.Location,
		a.GithubURL, a.LinkedinURL, a.PortfolioURL,
		a.IsActive, a.IsAdmin, a.Language, a.Timezone, a.CreatedAt,
	)
	return err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.getOne(ctx, "email = $1", email)
}

func (r *PgAccountRepository) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.getOne(ctx, "username = $1", username)
}

func (r *PgAccountRepository) getOne(ctx context.Context, where string, arg any) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	var a domain.Account
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash,
		&a.FirstName, &a.LastName, &a.ProfilePictureURL, &a.PhoneNumber, &a.Bio, &a.Location,
		&a.GithubURL, &a.LinkedinURL, &a.PortfolioURL,
		&a.IsActive, &a.IsAdmin, &a.Language, &a.Timezone,
		&a.CreatedAt, &a.UpdatedAt, &a.LastLoginAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (r *PgAccountRepository) UpdateProfile(ctx context.Context, a domain.Account) error {
	const query = `
		UPDATE accounts SET
			first_name = $2, last_name = $3, profile_picture_url = $4,
			phone_number = $5, bio = $6, location = $7,
			github_url = $8, linkedin_url = $9, portfolio_url = $10,
			language = $11, timezone = $12, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID,
		a.FirstName, a.LastName, a.ProfilePictureURL,
		a.PhoneNumber, a.Bio, a.Location,
		a.GithubURL, a.LinkedinURL, a.PortfolioURL,
		a.Language, a.Timezone,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgAccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgAccountRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE accounts SET last_login_at = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}
