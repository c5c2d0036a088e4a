package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceid/internal/gallery"
)

// Repository is a gallery.Persister backed by PostgreSQL.
type Repository struct {
	pool *Pool
}

// NewRepository creates a repository on an open pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads every identity with its samples.
func (r *Repository) Load(ctx context.Context) ([]gallery.Identity, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, name_key, name, level, COALESCE(email, ''), password_hash, created_at, updated_at
		FROM identities
		ORDER BY name_key
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []gallery.Identity
	byID := make(map[string]int)
	for rows.Next() {
		var id gallery.Identity
		var level int
		if err := rows.Scan(&id.ID, &id.Key, &id.Name, &level, &id.Email, &id.PasswordHash, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		id.Level = gallery.Level(level)
		byID[id.ID] = len(identities)
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	sampleRows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, identity_id, embedding, created_at
		FROM samples
		ORDER BY identity_id, created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer sampleRows.Close()

	for sampleRows.Next() {
		var s gallery.Sample
		var owner string
		var vec pgvector.Vector
		if err := sampleRows.Scan(&s.ID, &owner, &vec, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		pos, ok := byID[owner]
		if !ok {
			continue
		}
		s.Embedding = gallery.Embedding(vec.Slice())
		identities[pos].Samples = append(identities[pos].Samples, s)
	}
	if err := sampleRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	return identities, nil
}

// Save upserts the identity row and inserts samples not yet stored.
// Samples are immutable, so existing rows are left untouched.
func (r *Repository) Save(ctx context.Context, identity gallery.Identity) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, name_key, name, level, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			level = EXCLUDED.level,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at
	`, identity.ID, identity.Key, identity.Name, int(identity.Level), identity.Email, identity.PasswordHash,
		identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert identity %s: %w", identity.Key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (id, identity_id, embedding, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range identity.Samples {
		vec := pgvector.NewVector([]float32(s.Embedding))
		if _, err := stmt.ExecContext(ctx, s.ID, identity.ID, vec, s.CreatedAt); err != nil {
			return fmt.Errorf("insert sample %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity %s: %w", identity.Key, err)
	}
	return nil
}

// Delete removes the identity; samples cascade.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.db.ExecContext(ctx, "DELETE FROM identities WHERE name_key = $1", key); err != nil {
		return fmt.Errorf("delete identity %s: %w", key, err)
	}
	return nil
}

// Flush is a no-op; every Save commits.
func (r *Repository) Flush(ctx context.Context) error {
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	return r.pool.Close()
}

// Stats returns identity and sample row counts.
func (r *Repository) Stats(ctx context.Context) (identities, samples int, err error) {
	err = r.pool.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM identities), (SELECT COUNT(*) FROM samples)",
	).Scan(&identities, &samples)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, fmt.Errorf("count gallery rows: %w", err)
	}
	return identities, samples, nil
}
