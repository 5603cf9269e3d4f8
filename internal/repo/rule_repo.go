package repo

import (
	"context"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/cardwiz/ai-service/internal/model"
)

// RuleRepo persists reward rule vectors. Read paths tolerate a missing
// table so a fresh deployment can answer "no data" instead of erroring.
type RuleRepo struct {
	db *sqlx.DB
}

func NewRuleRepo(db *sqlx.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

func (r *RuleRepo) Upsert(ctx context.Context, rule *model.RewardRuleVector) error {
	const query = `
		INSERT INTO reward_rule_vectors (rule_id, card_id, content_text, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rule_id) DO UPDATE SET
			card_id = EXCLUDED.card_id,
			content_text = EXCLUDED.content_text,
			embedding = EXCLUDED.embedding
	`
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query,
		rule.RuleID,
		rule.CardID,
		rule.ContentText,
		pgvector.NewVector(rule.Embedding),
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *RuleRepo) HybridSearch(ctx context.Context, embedding []float32, queryText string, k int, vectorWeight, keywordWeight float64) ([]model.RetrievalCandidate, error) {
	const query = `
		SELECT rule_id, card_id, content_text,
			1 - (embedding <=> $1) AS vector_score,
			ts_rank(to_tsvector('english', content_text), plainto_tsquery('english', $2)) AS text_score
		FROM reward_rule_vectors
		ORDER BY (1 - (embedding <=> $1)) * $3 + ts_rank(to_tsvector('english', content_text), plainto_tsquery('english', $2)) * $4 DESC
		LIMIT $5
	`
	rows := []model.RetrievalCandidate{}
	err := r.db.SelectContext(ctx, &rows, query,
		pgvector.NewVector(embedding),
		queryText,
		vectorWeight,
		keywordWeight,
		k,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return []model.RetrievalCandidate{}, nil
		}
		return nil, err
	}
	for i := range rows {
		rows[i].FinalScore = rows[i].VectorScore*vectorWeight + rows[i].TextScore*keywordWeight
	}
	return rows, nil
}

func (r *RuleRepo) Coverage(ctx context.Context, cardIDs []int64) (map[int64]struct{}, error) {
	covered := make(map[int64]struct{})
	if len(cardIDs) == 0 {
		return covered, nil
	}
	where := map[string]interface{}{
		"card_id in": cardIDs,
	}
	sqlStr, args, err := builder.BuildSelect("reward_rule_vectors", where, []string{"distinct card_id"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(sqlStr), args...)
	if err != nil {
		if isUndefinedTable(err) {
			return covered, nil
		}
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		covered[id] = struct{}{}
	}
	return covered, rows.Err()
}
