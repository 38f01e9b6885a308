package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func scanProfile(row pgx.Row, notFound error) (*Profile, error) {
	var p Profile
	var email, phone *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}

	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}

func (d *PgDirectory) Therapist(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM therapists
		WHERE id = $1
	`, id)
	return scanProfile(row, ErrTherapistNotFound)
}

func (d *PgDirectory) Patient(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanProfile(row, ErrPatientNotFound)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (d *PgDirectory) SearchPatients(ctx context.Context, term string, limit int) ([]Entry, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []Entry{}, nil
	}
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, name, COALESCE(email, '')
		FROM patients
		WHERE lower(name) LIKE '%' || lower($1) || '%' ESCAPE '\'
		   OR lower(email) LIKE '%' || lower($1) || '%' ESCAPE '\'
		ORDER BY name
		LIMIT $2
	`, likeEscaper.Replace(term), limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	result := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Email); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
