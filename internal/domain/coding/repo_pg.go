package coding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

func (r *runRepoPG) Create(ctx context.Context, rec *RunRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = rec.Result.RunID
	}
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO validation_runs (id, approved, claim_status, result)
		VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.Approved, rec.ClaimStatus, payload)
	return err
}

func (r *runRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var rec RunRecord
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, approved, claim_status, result, created_at
		FROM validation_runs WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Approved, &rec.ClaimStatus, &payload, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Result); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &rec, nil
}

func (r *runRepoPG) List(ctx context.Context, limit, offset int) ([]*RunRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM validation_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, approved, claim_status, result, created_at
		FROM validation_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		var rec RunRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Approved, &rec.ClaimStatus, &payload, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(payload, &rec.Result); err != nil {
			return nil, 0, fmt.Errorf("unmarshal run %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}
