package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/wtsdeal/broadcast-service/internal/accounts"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id     TEXT PRIMARY KEY,
	username    TEXT NOT NULL DEFAULT '',
	mail        TEXT NOT NULL DEFAULT '',
	api_token   TEXT NOT NULL,
	is_active   INTEGER NOT NULL DEFAULT 1,
	coins       INTEGER NOT NULL DEFAULT 0,
	marketing_coins      INTEGER NOT NULL DEFAULT 0,
	authentication_coins INTEGER NOT NULL DEFAULT 0,
	phone_number TEXT NOT NULL DEFAULT '',
	phone_id     TEXT NOT NULL DEFAULT '',
	waba_id      TEXT NOT NULL DEFAULT '',
	app_id       TEXT NOT NULL DEFAULT '',
	app_token    TEXT NOT NULL DEFAULT ''
);
`

// UserStore is a local SQLite credential registry implementing the same
// lookup contract as the remote accounts client. It backs deployments that
// run without the central validation service.
type UserStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open initialises the SQLite backed user store at the given path, creating
// the schema when absent.
func Open(path string, logger zerolog.Logger) (*UserStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &UserStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *UserStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FetchUser resolves credentials locally with the same rejection semantics as
// the remote client: unknown pair yields 401, inactive account 403.
func (s *UserStore) FetchUser(ctx context.Context, userID, apiToken string) (*accounts.UserData, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, api_token, is_active, coins, marketing_coins, authentication_coins,
		       phone_id, waba_id, app_id, app_token
		FROM users WHERE user_id = ? AND api_token = ?`, userID, apiToken)

	var (
		user   accounts.UserData
		active int
	)
	err := row.Scan(&user.UserID, &user.APIToken, &active, &user.Coins,
		&user.MarketingCoins, &user.AuthenticationCoins,
		&user.PhoneNumberID, &user.WABAID, &user.AppID, &user.AppToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &accounts.Rejection{
			StatusCode: http.StatusUnauthorized,
			Detail:     "failed to validate user credentials; check user_id and api_token",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch user: %w", err)
	}

	if active == 0 {
		return nil, &accounts.Rejection{
			StatusCode: http.StatusForbidden,
			Detail:     "user account is not active; please contact support",
		}
	}
	user.IsActive = true
	return &user, nil
}

// UpsertUser inserts or replaces a user record. Used by provisioning tooling
// and tests.
func (s *UserStore) UpsertUser(ctx context.Context, user accounts.UserData) error {
	active := 0
	if user.IsActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, api_token, is_active, coins, marketing_coins, authentication_coins,
			phone_id, waba_id, app_id, app_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			api_token = excluded.api_token,
			is_active = excluded.is_active,
			coins = excluded.coins,
			marketing_coins = excluded.marketing_coins,
			authentication_coins = excluded.authentication_coins,
			phone_id = excluded.phone_id,
			waba_id = excluded.waba_id,
			app_id = excluded.app_id,
			app_token = excluded.app_token`,
		user.UserID, user.APIToken, active, user.Coins, user.MarketingCoins,
		user.AuthenticationCoins, user.PhoneNumberID, user.WABAID, user.AppID, user.AppToken)
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// DeductCoins subtracts a reservation from the user's balance, refusing to go
// negative.
func (s *UserStore) DeductCoins(ctx context.Context, userID string, amount int) error {
	if amount < 0 {
		return errors.New("store: deduct amount cannot be negative")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET coins = coins - ? WHERE user_id = ? AND coins >= ?`,
		amount, userID, amount)
	if err != nil {
		return fmt.Errorf("store: deduct coins: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: deduct coins: %w", err)
	}
	if affected == 0 {
		return &accounts.Rejection{
			StatusCode: http.StatusPaymentRequired,
			Detail:     "insufficient coins; please recharge your account",
		}
	}
	return nil
}

// UpdateBalanceReport deducts the reservation locally and mints a report id.
// It mirrors the remote reservation call for deployments that run without the
// central account service.
func (s *UserStore) UpdateBalanceReport(ctx context.Context, report accounts.BalanceReport) (string, error) {
	if err := s.DeductCoins(ctx, report.UserID, report.Coins); err != nil {
		return "", err
	}
	reportID := uuid.NewString()
	s.logger.Info().
		Str("user_id", report.UserID).
		Str("report_id", reportID).
		Int("coins", report.Coins).
		Msg("store: reserved coins for job")
	return reportID, nil
}
