package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/andre-fig/backoffice/db"
)

// AccountRepository implements AccountStore on the appchat database.
// Overrides live in accounts.pool at config.overrides.
type AccountRepository struct {
	PG *sql.DB
}

func NewAccountRepository(pg *sql.DB) *AccountRepository {
	return &AccountRepository{PG: pg}
}

var _ AccountStore = (*AccountRepository)(nil)

// FindByAllowedGroup returns the first configured account whose allowed groups contain groupID
func (r *AccountRepository) FindByAllowedGroup(ctx context.Context, groupID string) (*db.Account, error) {
	row := r.PG.QueryRowContext(ctx, `
		SELECT id, app_id, allowed_groups, pool
		FROM accounts
		WHERE $1 = ANY(allowed_groups)
		AND pool->'config' IS NOT NULL
		ORDER BY id ASC
		LIMIT 1
	`, groupID)

	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no account for group %s", ErrNotFound, groupID)
		}
		return nil, fmt.Errorf("failed to find account by group: %w", err)
	}
	return acc, nil
}

// FindByOverride returns the account whose override for sectorCode is exactly destinationUserID
func (r *AccountRepository) FindByOverride(ctx context.Context, sectorCode, destinationUserID string) (*db.Account, error) {
	row := r.PG.QueryRowContext(ctx, `
		SELECT id, app_id, allowed_groups, pool
		FROM accounts
		WHERE pool->'config'->'overrides'->>$1 = $2
		ORDER BY id ASC
		LIMIT 1
	`, sectorCode, destinationUserID)

	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no override %s -> %s", ErrNotFound, sectorCode, destinationUserID)
		}
		return nil, fmt.Errorf("failed to find account by override: %w", err)
	}
	return acc, nil
}

// List returns every account that carries a routing config
func (r *AccountRepository) List(ctx context.Context) ([]db.Account, error) {
	rows, err := r.PG.QueryContext(ctx, `
		SELECT id, app_id, allowed_groups, pool
		FROM accounts
		WHERE pool->'config' IS NOT NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []db.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// SetOverride writes sector -> destination into the account's override map
func (r *AccountRepository) SetOverride(ctx context.Context, accountID, sectorCode, destinationUserID string) error {
	res, err := r.PG.ExecContext(ctx, `
		UPDATE accounts
		SET pool = jsonb_set(
			pool,
			'{config,overrides}',
			COALESCE(pool->'config'->'overrides', '{}'::jsonb) || jsonb_build_object($2::text, $3::text),
			true
		)
		WHERE id = $1 AND pool->'config' IS NOT NULL
	`, accountID, sectorCode, destinationUserID)
	if err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return nil
}

// RemoveOverride deletes the sector slot only while it still equals expectedDestination
func (r *AccountRepository) RemoveOverride(ctx context.Context, accountID, sectorCode, expectedDestination string) (bool, error) {
	res, err := r.PG.ExecContext(ctx, `
		UPDATE accounts
		SET pool = pool #- ARRAY['config', 'overrides', $2::text]
		WHERE id = $1 AND pool->'config'->'overrides'->>$2 = $3
	`, accountID, sectorCode, expectedDestination)
	if err != nil {
		return false, fmt.Errorf("failed to remove override: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove override: %w", err)
	}
	return affected > 0, nil
}

func scanAccount(row rowScanner) (*db.Account, error) {
	var acc db.Account
	var appID sql.NullString
	var pool []byte

	if err := row.Scan(&acc.ID, &appID, pq.Array(&acc.AllowedGroups), &pool); err != nil {
		return nil, err
	}
	acc.AppID = appID.String

	var cfg db.PoolConfig
	if len(pool) > 0 {
		if err := json.Unmarshal(pool, &cfg); err != nil {
			return nil, fmt.Errorf("invalid pool config for account %s: %w", acc.ID, err)
		}
	}
	acc.Overrides = cfg.Config.Overrides
	if acc.Overrides == nil {
		acc.Overrides = map[string]string{}
	}
	return &acc, nil
}
