package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContactRepository struct {
	db dbtx
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: pool}
}

func NewContactRepositoryWithTx(tx pgx.Tx) *ContactRepository {
	return &ContactRepository{db: tx}
}

func (r *ContactRepository) Create(ctx context.Context, c *domain.Contact) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO contacts (id, email, name, organization, role, attributes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Email, c.Name, nullableString(c.Organization), nullableString(c.Role), attrs, c.CreatedAt,
	)
	return err
}

func (r *ContactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	return r.get(ctx,
		`SELECT id, email, name, organization, role, attributes, created_at
		 FROM contacts WHERE id = $1`,
		id,
	)
}

func (r *ContactRepository) GetByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	return r.get(ctx,
		`SELECT id, email, name, organization, role, attributes, created_at
		 FROM contacts WHERE email = $1`,
		domain.NormalizeEmail(email),
	)
}

func (r *ContactRepository) get(ctx context.Context, query string, arg any) (*domain.Contact, error) {
	var c domain.Contact
	var organization, role *string
	var attrs []byte
	err := r.db.QueryRow(ctx, query, arg).
		Scan(&c.ID, &c.Email, &c.Name, &organization, &role, &attrs, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}
	if organization != nil {
		c.Organization = *organization
	}
	if role != nil {
		c.Role = *role
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *ContactRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Contact, error) {
	if len(ids) == 0 {
		return []*domain.Contact{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, email, name, organization, role, attributes, created_at
		 FROM contacts WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContactRows(rows)
}

func (r *ContactRepository) Update(ctx context.Context, c *domain.Contact) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE contacts SET name = $1, organization = $2, role = $3, attributes = $4
		 WHERE id = $5`,
		c.Name, nullableString(c.Organization), nullableString(c.Role), attrs, c.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrContactNotFound
	}
	return nil
}

func scanContactRows(rows pgx.Rows) ([]*domain.Contact, error) {
	var results []*domain.Contact
	for rows.Next() {
		var c domain.Contact
		var organization, role *string
		var attrs []byte
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &organization, &role, &attrs, &c.CreatedAt); err != nil {
			return nil, err
		}
		if organization != nil {
			c.Organization = *organization
		}
		if role != nil {
			c.Role = *role
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
				return nil, err
			}
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}
