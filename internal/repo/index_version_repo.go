package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// IndexVersionRepo tracks a single monotonically increasing counter bumped
// on every rule write. Retrieval caches mix the version into their keys so
// a write invalidates cached results without explicit deletion.
type IndexVersionRepo struct {
	db *sqlx.DB
}

func NewIndexVersionRepo(db *sqlx.DB) *IndexVersionRepo {
	return &IndexVersionRepo{db: db}
}

func (r *IndexVersionRepo) Bump(ctx context.Context) (int64, error) {
	const query = `
		INSERT INTO index_version (id, version) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET version = index_version.version + 1
		RETURNING version
	`
	var version int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (r *IndexVersionRepo) Current(ctx context.Context) (int64, error) {
	const query = `SELECT version FROM index_version WHERE id = 1`
	var version int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		if err == sql.ErrNoRows || isUndefinedTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}
