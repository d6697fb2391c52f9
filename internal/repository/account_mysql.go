package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hoardwatch-api/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLAPIAccountRepository implements APIAccountRepository using MySQL.
type MySQLAPIAccountRepository struct {
	db *sql.DB
}

// NewMySQLAPIAccountRepository creates a new MySQL API account repository.
func NewMySQLAPIAccountRepository(dsn string) (*MySQLAPIAccountRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &MySQLAPIAccountRepository{db: db}, nil
}

// ValidateAPIKey looks up an active API account by its key.
// Returns nil, nil when the key is unknown or deactivated.
func (r *MySQLAPIAccountRepository) ValidateAPIKey(ctx context.Context, key string) (*model.APIAccount, error) {
	query := `SELECT id, roblox_user_id, username, role, is_active
		FROM api_accounts WHERE api_key = ? AND is_active = 1 LIMIT 1`

	var acct model.APIAccount
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&acct.ID, &acct.RobloxUserID, &acct.Username, &acct.Role, &acct.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to validate API key: %w", err)
	}

	return &acct, nil
}

// Close closes the database connection pool.
func (r *MySQLAPIAccountRepository) Close() error {
	return r.db.Close()
}

// Ensure MySQLAPIAccountRepository implements APIAccountRepository
var _ APIAccountRepository = (*MySQLAPIAccountRepository)(nil)
