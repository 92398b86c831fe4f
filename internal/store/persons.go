package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Skufu/pneumoscan/internal/model"
)

const personColumns = `id, email, full_name, phone, address, password_hash, created_at, updated_at`

// PersonUpdate holds the editable contact fields. Nil fields are left unchanged.
type PersonUpdate struct {
	FullName *string
	Phone    *string
	Address  *string
}

func (u PersonUpdate) Empty() bool {
	return u.FullName == nil && u.Phone == nil && u.Address == nil
}

// CreatePersonWithProfile inserts a person and their health profile atomically.
// A duplicate email yields model.ErrAlreadyExists. IDs and timestamps are set on
// both arguments.
func (s *Store) CreatePersonWithProfile(ctx context.Context, p *model.Person, hp *model.HealthProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.now().UTC()
	p.Email = NormalizeEmail(p.Email)
	p.CreatedAt, p.UpdatedAt = now, now
	hp.PersonID = p.ID
	hp.CreatedAt, hp.UpdatedAt = now, now

	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO persons (`+personColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.Email, p.FullName, p.Phone, p.Address, p.PasswordHash, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("person %s: %w", p.Email, model.ErrAlreadyExists)
			}
			return fmt.Errorf("insert person: %w", err)
		}
		if err := insertProfile(ctx, tx, hp); err != nil {
			return fmt.Errorf("insert health profile: %w", err)
		}
		return nil
	})
}

func (s *Store) FindPersonByEmail(ctx context.Context, email string) (*model.Person, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE email = $1`, NormalizeEmail(email))
	return scanPerson(row)
}

func (s *Store) FindPersonByID(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id)
	return scanPerson(row)
}

// UpdatePerson applies the non-nil fields of u and returns the updated person.
func (s *Store) UpdatePerson(ctx context.Context, id uuid.UUID, u PersonUpdate) (*model.Person, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE persons SET
			full_name  = COALESCE($2, full_name),
			phone      = COALESCE($3, phone),
			address    = COALESCE($4, address),
			updated_at = $5
		WHERE id = $1
		RETURNING `+personColumns,
		id, u.FullName, u.Phone, u.Address, s.now().UTC())
	return scanPerson(row)
}

func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func scanPerson(row pgx.Row) (*model.Person, error) {
	var p model.Person
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.Address, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
