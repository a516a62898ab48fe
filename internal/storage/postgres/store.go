package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spotHook/internal/model"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_id      TEXT PRIMARY KEY,
	currency0    TEXT NOT NULL,
	currency1    TEXT NOT NULL,
	fee          INTEGER NOT NULL,
	tick_spacing INTEGER NOT NULL,
	hooks        TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	run_id            TEXT NOT NULL,
	pool_id           TEXT NOT NULL,
	seq               BIGINT NOT NULL,
	ts                BIGINT NOT NULL,
	tick              INTEGER NOT NULL,
	max_tick_move     INTEGER NOT NULL,
	cap_event         BOOLEAN NOT NULL,
	base_fee_ppm      INTEGER NOT NULL,
	surge_fee_ppm     INTEGER NOT NULL,
	effective_fee_ppm INTEGER NOT NULL,
	effective_fee_pct NUMERIC NOT NULL,
	total_shares      NUMERIC NOT NULL,
	locked_shares     NUMERIC NOT NULL,
	protocol_shares   NUMERIC NOT NULL,
	reserve0          NUMERIC NOT NULL,
	reserve1          NUMERIC NOT NULL,
	queued0           NUMERIC NOT NULL,
	queued1           NUMERIC NOT NULL,
	leftover0         NUMERIC NOT NULL,
	leftover1         NUMERIC NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, pool_id, seq)
);

ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS lp_carry0 NUMERIC NOT NULL DEFAULT 0;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS lp_carry1 NUMERIC NOT NULL DEFAULT 0;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS cap_raised BOOLEAN NOT NULL DEFAULT false;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS baseline_fee_ppm INTEGER NOT NULL DEFAULT 0;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS dynamic_fees0 NUMERIC;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS dynamic_fees1 NUMERIC;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS baseline_fees0 NUMERIC;
ALTER TABLE pool_snapshots ADD COLUMN IF NOT EXISTS baseline_fees1 NUMERIC;

CREATE TABLE IF NOT EXISTS spot_state (
	name              TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for pools, snapshots and replay progress.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool keys.
func (s *Store) UpsertPools(ctx context.Context, keys []model.PoolKey) error {
	if len(keys) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, key := range keys {
		id, err := key.ID()
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO pools (
				pool_id, currency0, currency1, fee, tick_spacing, hooks, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (pool_id)
			DO UPDATE SET updated_at = now()
		`,
			id.Hex(),
			key.Currency0.Hex(),
			key.Currency1.Hex(),
			int64(key.Fee),
			key.TickSpacing,
			key.Hooks.Hex(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range keys {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutSnapshots inserts or updates pool snapshots keyed by run, pool and sequence.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				run_id, pool_id, seq, ts, tick, max_tick_move, cap_event,
				base_fee_ppm, surge_fee_ppm, effective_fee_ppm, effective_fee_pct,
				total_shares, locked_shares, protocol_shares, reserve0, reserve1,
				queued0, queued1, leftover0, leftover1, lp_carry0, lp_carry1,
				cap_raised, baseline_fee_ppm, dynamic_fees0, dynamic_fees1,
				baseline_fees0, baseline_fees1, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
				$21,$22,$23,$24,$25,$26,$27,$28,now())
			ON CONFLICT (run_id, pool_id, seq)
			DO UPDATE SET
				ts = EXCLUDED.ts,
				tick = EXCLUDED.tick,
				max_tick_move = EXCLUDED.max_tick_move,
				cap_event = EXCLUDED.cap_event,
				base_fee_ppm = EXCLUDED.base_fee_ppm,
				surge_fee_ppm = EXCLUDED.surge_fee_ppm,
				effective_fee_ppm = EXCLUDED.effective_fee_ppm,
				effective_fee_pct = EXCLUDED.effective_fee_pct,
				total_shares = EXCLUDED.total_shares,
				locked_shares = EXCLUDED.locked_shares,
				protocol_shares = EXCLUDED.protocol_shares,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				queued0 = EXCLUDED.queued0,
				queued1 = EXCLUDED.queued1,
				leftover0 = EXCLUDED.leftover0,
				leftover1 = EXCLUDED.leftover1,
				lp_carry0 = EXCLUDED.lp_carry0,
				lp_carry1 = EXCLUDED.lp_carry1,
				cap_raised = EXCLUDED.cap_raised,
				baseline_fee_ppm = EXCLUDED.baseline_fee_ppm,
				dynamic_fees0 = EXCLUDED.dynamic_fees0,
				dynamic_fees1 = EXCLUDED.dynamic_fees1,
				baseline_fees0 = EXCLUDED.baseline_fees0,
				baseline_fees1 = EXCLUDED.baseline_fees1
		`,
			snap.RunID,
			snap.PoolID,
			int64(snap.Seq),
			int64(snap.Timestamp),
			snap.Tick,
			int64(snap.MaxTickMove),
			snap.CapEvent,
			int64(snap.BaseFeePpm),
			int64(snap.SurgeFeePpm),
			int64(snap.EffectiveFeePpm),
			snap.EffectiveFeePct,
			snap.TotalShares,
			snap.LockedShares,
			snap.ProtocolShares,
			snap.Reserve0,
			snap.Reserve1,
			snap.Queued0,
			snap.Queued1,
			snap.Leftover0,
			snap.Leftover1,
			numericOrZero(snap.Carry0),
			numericOrZero(snap.Carry1),
			snap.CapRaised,
			int64(snap.BaselineFeePpm),
			nullableNumeric(snap.DynamicFees0),
			nullableNumeric(snap.DynamicFees1),
			nullableNumeric(snap.BaselineFees0),
			nullableNumeric(snap.BaselineFees1),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM spot_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO spot_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func numericOrZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func nullableNumeric(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
