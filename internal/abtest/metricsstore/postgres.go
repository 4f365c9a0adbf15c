// Copyright 2026 The Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metricsstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"abtest/pkg/bandit"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS endpoints (
//   endpoint_name TEXT PRIMARY KEY,
//   strategy      TEXT NOT NULL,
//   epsilon       DOUBLE PRECISION NOT NULL,
//   warmup        BIGINT NOT NULL,
//   created_at    TIMESTAMPTZ NOT NULL,
//   updated_at    TIMESTAMPTZ NOT NULL,
//   deleted_at    TIMESTAMPTZ
// );
//
// CREATE TABLE IF NOT EXISTS endpoint_variants (
//   endpoint_name    TEXT NOT NULL REFERENCES endpoints(endpoint_name),
//   variant_name     TEXT NOT NULL,
//   initial_weight   DOUBLE PRECISION NOT NULL,
//   invocation_count BIGINT NOT NULL DEFAULT 0,
//   conversion_count BIGINT NOT NULL DEFAULT 0,
//   reward_sum       DOUBLE PRECISION NOT NULL DEFAULT 0,
//   PRIMARY KEY (endpoint_name, variant_name)
// );
//
// CREATE TABLE IF NOT EXISTS applied_commits (
//   commit_id     TEXT PRIMARY KEY,
//   endpoint_name TEXT NOT NULL,
//   variant_name  TEXT NOT NULL,
//   applied_at    TIMESTAMPTZ NOT NULL DEFAULT now()
// );
//
// Register replaces an endpoint's roster wholesale inside one transaction
// (delete-then-insert the variant rows), the same "safe inside one tx, no
// partial roster" guarantee the teacher's CommitBatch gives a batch of
// counter entries. Fold follows the teacher's insert-marker-then-guarded-
// update shape: a delta carrying a CommitID first INSERTs an applied_commits
// marker with ON CONFLICT DO NOTHING, and only applies its counter UPDATE
// when that insert actually added a row, so a redelivered batch with the
// same CommitID is a no-op rather than a double-count. A delta with no
// CommitID (or referencing a variant row that doesn't exist) applies
// unconditionally, skipping rows that don't exist rather than failing the
// batch, matching MemoryStore's behavior.

// PostgresStore is a Postgres-backed Store, for deployments that need
// counters to survive a process restart. It is grounded on the teacher's
// internal/ratelimiter/persistence/postgres.go PostgresPersister: same
// BeginTx/defer-Rollback/Commit shape, generalized from one scalar column
// to three named counter columns.
type PostgresStore struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresStore wraps an already-opened *sql.DB (expected to use
// github.com/lib/pq as its driver).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, defaultTimeout: 10 * time.Second}
}

func (p *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.defaultTimeout)
}

func (p *PostgresStore) Register(endpointName string, variantNames []string, initialWeights map[string]float64, strategy bandit.Strategy, epsilon float64, warmup int64, ts time.Time) (bool, error) {
	ctx, cancel := p.withTimeout(context.Background())
	defer cancel()

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var existed bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM endpoints WHERE endpoint_name = $1)`, endpointName,
	).Scan(&existed); err != nil {
		return false, fmt.Errorf("check existing endpoint(%s): %w", endpointName, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO endpoints(endpoint_name, strategy, epsilon, warmup, created_at, updated_at, deleted_at)
		 VALUES ($1,$2,$3,$4,$5,$5,NULL)
		 ON CONFLICT (endpoint_name) DO UPDATE SET
		   strategy = EXCLUDED.strategy, epsilon = EXCLUDED.epsilon, warmup = EXCLUDED.warmup,
		   updated_at = EXCLUDED.updated_at, deleted_at = NULL`,
		endpointName, string(strategy), epsilon, warmup, ts); err != nil {
		return false, fmt.Errorf("upsert endpoints(%s): %w", endpointName, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM endpoint_variants WHERE endpoint_name = $1`, endpointName); err != nil {
		return false, fmt.Errorf("clear variants(%s): %w", endpointName, err)
	}
	for _, name := range variantNames {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO endpoint_variants(endpoint_name, variant_name, initial_weight) VALUES ($1,$2,$3)`,
			endpointName, name, initialWeights[name]); err != nil {
			return false, fmt.Errorf("insert variant(%s,%s): %w", endpointName, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return existed, nil
}

func (p *PostgresStore) SoftDelete(endpointName string, ts time.Time) error {
	ctx, cancel := p.withTimeout(context.Background())
	defer cancel()

	res, err := p.db.ExecContext(ctx,
		`UPDATE endpoints SET deleted_at = COALESCE(deleted_at, $2), updated_at = $2 WHERE endpoint_name = $1`,
		endpointName, ts)
	if err != nil {
		return fmt.Errorf("soft delete(%s): %w", endpointName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEndpointUnknown
	}
	return nil
}

func (p *PostgresStore) Read(endpointName string) (EndpointRecord, error) {
	ctx, cancel := p.withTimeout(context.Background())
	defer cancel()

	var rec EndpointRecord
	var strategy string
	var deletedAt sql.NullTime
	err := p.db.QueryRowContext(ctx,
		`SELECT endpoint_name, strategy, epsilon, warmup, created_at, updated_at, deleted_at
		 FROM endpoints WHERE endpoint_name = $1`, endpointName,
	).Scan(&rec.EndpointName, &strategy, &rec.Epsilon, &rec.Warmup, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return EndpointRecord{}, ErrEndpointUnknown
	}
	if err != nil {
		return EndpointRecord{}, fmt.Errorf("read endpoint(%s): %w", endpointName, err)
	}
	rec.Strategy = bandit.Strategy(strategy)
	if deletedAt.Valid {
		d := deletedAt.Time
		rec.DeletedAt = &d
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT variant_name, initial_weight, invocation_count, conversion_count, reward_sum
		 FROM endpoint_variants WHERE endpoint_name = $1`, endpointName)
	if err != nil {
		return EndpointRecord{}, fmt.Errorf("read variants(%s): %w", endpointName, err)
	}
	defer rows.Close()

	rec.Variants = make(map[string]Variant)
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.Name, &v.InitialWeight, &v.InvocationCount, &v.ConversionCount, &v.RewardSum); err != nil {
			return EndpointRecord{}, fmt.Errorf("scan variant(%s): %w", endpointName, err)
		}
		rec.Variants[v.Name] = v
		rec.VariantNames = append(rec.VariantNames, v.Name)
	}
	if err := rows.Err(); err != nil {
		return EndpointRecord{}, err
	}
	return rec, nil
}

// Fold applies every delta inside one transaction, one UPDATE per touched
// (endpoint, variant). A delta referencing a variant row that doesn't exist
// affects zero rows and is silently skipped, matching MemoryStore.Fold. A
// delta carrying a CommitID is applied idempotently: see the applied_commits
// marker-table comment above.
func (p *PostgresStore) Fold(deltas []FoldDelta, ts time.Time) error {
	if len(deltas) == 0 {
		return nil
	}
	ctx, cancel := p.withTimeout(context.Background())
	defer cancel()

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	touched := make(map[string]bool, len(deltas))
	for _, d := range deltas {
		apply := true
		if d.CommitID != "" {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO applied_commits(commit_id, endpoint_name, variant_name) VALUES ($1,$2,$3)
				 ON CONFLICT DO NOTHING`,
				d.CommitID, d.EndpointName, d.VariantName)
			if err != nil {
				return fmt.Errorf("insert applied_commits(%s): %w", d.CommitID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected applied_commits(%s): %w", d.CommitID, err)
			}
			apply = n > 0
		}
		if !apply {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE endpoint_variants
			   SET invocation_count = invocation_count + $3,
			       conversion_count = conversion_count + $4,
			       reward_sum = reward_sum + $5
			 WHERE endpoint_name = $1 AND variant_name = $2`,
			d.EndpointName, d.VariantName, d.DeltaInvocation, d.DeltaConversion, d.DeltaReward); err != nil {
			return fmt.Errorf("fold(%s,%s): %w", d.EndpointName, d.VariantName, err)
		}
		touched[d.EndpointName] = true
	}
	for name := range touched {
		if _, err := tx.ExecContext(ctx,
			`UPDATE endpoints SET updated_at = $2 WHERE endpoint_name = $1`, name, ts); err != nil {
			return fmt.Errorf("touch endpoint(%s): %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
