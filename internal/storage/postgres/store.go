package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flarebets/internal/model"
)

// Store provides Postgres persistence for bets and the event archive.
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

// UpsertBets inserts or updates bet records. Status, payout, and the
// transaction hash move as the bet progresses through its lifecycle; the
// contract id is written once known and never cleared.
func (s *Store) UpsertBets(ctx context.Context, bets []model.Bet) error {
	if len(bets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, bet := range bets {
		var contractID *string
		if bet.ContractID != nil {
			hex := bet.ContractID.Hex()
			contractID = &hex
		}
		batch.Queue(`
			INSERT INTO bets (
				id, contract_id, race_id, race_name, driver_id, driver_name,
				owner, stake, odds, status, payout, tx_hash, placed_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
			ON CONFLICT (id)
			DO UPDATE SET
				contract_id = COALESCE(EXCLUDED.contract_id, bets.contract_id),
				status = EXCLUDED.status,
				payout = EXCLUDED.payout,
				tx_hash = EXCLUDED.tx_hash,
				updated_at = now()
		`,
			bet.ID,
			contractID,
			bet.RaceID,
			bet.RaceName,
			bet.DriverID,
			bet.DriverName,
			bet.Owner,
			bet.Stake,
			bet.Odds,
			string(bet.Status),
			bet.Payout,
			bet.TxHash,
			bet.PlacedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bets {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the saved unix timestamp for a named marker.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM session_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts the unix timestamp for a named marker.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}

// AppendEvents archives decoded contract events. The (tx_hash, log_index)
// key makes re-archiving after a refresh a no-op.
func (s *Store) AppendEvents(ctx context.Context, events []model.ContractEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		batch.Queue(`
			INSERT INTO contract_events (
				event_type, tx_hash, block_number, log_index, event_ts, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			string(event.Type),
			event.TxHash,
			int64(event.BlockNumber),
			int64(event.LogIndex),
			int64(event.Timestamp),
			payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
