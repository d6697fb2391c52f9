package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"hoardwatch-api/internal/model"
	"hoardwatch-api/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements CollectiblesStore using SQLite.
// Thread-safe with WAL mode for high-concurrency reads.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite collectibles store.
// dbPath is the path to the database file (e.g., "./data/collectibles.db").
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		asset_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		manipulated INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS holders (
		roblox_user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		roblox_user_id INTEGER NOT NULL REFERENCES holders(roblox_user_id),
		total_rap INTEGER NOT NULL DEFAULT 0,
		total_items INTEGER NOT NULL DEFAULT 0,
		unique_items INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_holder ON snapshots(roblox_user_id, created_at);
	CREATE TABLE IF NOT EXISTS snapshot_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
		user_asset_id INTEGER NOT NULL,
		asset_id INTEGER NOT NULL,
		serial_number INTEGER,
		scanned_at DATETIME NOT NULL,
		UNIQUE(snapshot_id, user_asset_id)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshot_items_asset ON snapshot_items(asset_id);
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id INTEGER NOT NULL,
		rap INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_price_history_asset ON price_history(asset_id, timestamp);
	`
	_, err := db.Exec(query)
	return err
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// UpsertHolder inserts or updates a holder's display attributes.
func (s *SQLiteStore) UpsertHolder(ctx context.Context, holder *model.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holders (roblox_user_id, username, display_name, avatar_url, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(roblox_user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			description = excluded.description,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		holder.RobloxUserID, holder.Username, holder.DisplayName,
		holder.AvatarURL, holder.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert holder %d: %w", holder.RobloxUserID, err)
	}
	return nil
}

// GetHolder retrieves a holder by Roblox user ID.
func (s *SQLiteStore) GetHolder(ctx context.Context, robloxUserID int64) (*model.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT roblox_user_id, username, display_name, avatar_url, description, role, updated_at
		FROM holders WHERE roblox_user_id = ?`

	var h model.Holder
	err := s.db.QueryRowContext(ctx, query, robloxUserID).Scan(
		&h.RobloxUserID, &h.Username, &h.DisplayName, &h.AvatarURL, &h.Description, &h.Role, &h.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holder %d: %w", robloxUserID, err)
	}
	return &h, nil
}

// GetItem retrieves a catalog item.
func (s *SQLiteStore) GetItem(ctx context.Context, assetID int64) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT asset_id, name, description, image_url, manipulated, created_at, updated_at
		FROM items WHERE asset_id = ?`

	var item model.Item
	err := s.db.QueryRowContext(ctx, query, assetID).Scan(
		&item.AssetID, &item.Name, &item.Description, &item.ImageURL,
		&item.Manipulated, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item %d: %w", assetID, err)
	}
	return &item, nil
}

// ListItems returns a page of catalog items ordered by asset ID.
func (s *SQLiteStore) ListItems(ctx context.Context, limit, offset int) ([]model.Item, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	query := `SELECT asset_id, name, description, image_url, manipulated, created_at, updated_at
		FROM items ORDER BY asset_id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.AssetID, &item.Name, &item.Description, &item.ImageURL,
			&item.Manipulated, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// EnsureItems creates placeholder catalog rows for unknown asset IDs.
func (s *SQLiteStore) EnsureItems(ctx context.Context, assetIDs []int64) error {
	if len(assetIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (asset_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, assetID := range assetIDs {
		name := fmt.Sprintf("Unknown Item %d", assetID)
		if _, err := stmt.ExecContext(ctx, assetID, name, now, now); err != nil {
			return fmt.Errorf("failed to ensure item %d: %w", assetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetManipulated flips an item's manipulation flag.
func (s *SQLiteStore) SetManipulated(ctx context.Context, assetID int64, manipulated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE items SET manipulated = ?, updated_at = ? WHERE asset_id = ?`
	result, err := s.db.ExecContext(ctx, query, manipulated, time.Now().UTC(), assetID)
	if err != nil {
		return fmt.Errorf("failed to set manipulated flag on %d: %w", assetID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateItemCatalog backfills catalog details onto an item row.
func (s *SQLiteStore) UpdateItemCatalog(ctx context.Context, assetID int64, name, description, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE items SET name = ?, description = ?, image_url = ?, updated_at = ? WHERE asset_id = ?`
	result, err := s.db.ExecContext(ctx, query, name, description, imageURL, time.Now().UTC(), assetID)
	if err != nil {
		return fmt.Errorf("failed to update catalog for %d: %w", assetID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordRAP appends RAP observations to the price history.
func (s *SQLiteStore) RecordRAP(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_history (asset_id, rap, timestamp) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, p.AssetID, p.RAP, ts); err != nil {
			return fmt.Errorf("failed to record RAP for %d: %w", p.AssetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestRAPs returns the most recent RAP per asset ID.
func (s *SQLiteStore) LatestRAPs(ctx context.Context, assetIDs []int64) (map[int64]int64, error) {
	raps := make(map[int64]int64)
	if len(assetIDs) == 0 {
		return raps, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]interface{}, len(assetIDs))
	for i, id := range assetIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT p.asset_id, p.rap
		FROM price_history p
		JOIN (
			SELECT asset_id, MAX(timestamp) AS ts
			FROM price_history
			WHERE asset_id IN (%s)
			GROUP BY asset_id
		) latest ON latest.asset_id = p.asset_id AND latest.ts = p.timestamp`,
		placeholders(len(assetIDs)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest RAPs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var assetID, rap int64
		if err := rows.Scan(&assetID, &rap); err != nil {
			return nil, err
		}
		raps[assetID] = rap
	}
	return raps, rows.Err()
}

// PrunePriceHistory deletes RAP observations older than the threshold.
func (s *SQLiteStore) PrunePriceHistory(ctx context.Context, threshold time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)

	result, err := s.db.ExecContext(ctx, `DELETE FROM price_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune price history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("[SQLiteStore] Pruned %d price history rows (threshold: %v)", deleted, threshold)
	}
	return deleted, nil
}

// LatestSnapshot returns the holder's most recent snapshot with instances.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, robloxUserID int64) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, roblox_user_id, total_rap, total_items, unique_items, created_at, updated_at
		FROM snapshots WHERE roblox_user_id = ? ORDER BY created_at DESC LIMIT 1`

	var snap model.Snapshot
	err := s.db.QueryRowContext(ctx, query, robloxUserID).Scan(
		&snap.ID, &snap.RobloxUserID, &snap.TotalRAP, &snap.TotalItems,
		&snap.UniqueItems, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot for %d: %w", robloxUserID, err)
	}

	instances, err := s.snapshotInstances(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	snap.Instances = instances
	return &snap, nil
}

func (s *SQLiteStore) snapshotInstances(ctx context.Context, snapshotID string) ([]model.Instance, error) {
	query := `SELECT user_asset_id, asset_id, serial_number, scanned_at
		FROM snapshot_items WHERE snapshot_id = ? ORDER BY user_asset_id`

	rows, err := s.db.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot instances: %w", err)
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		var serial sql.NullInt64
		if err := rows.Scan(&inst.UserAssetID, &inst.AssetID, &serial, &inst.ScannedAt); err != nil {
			return nil, err
		}
		if serial.Valid {
			n := int(serial.Int64)
			inst.SerialNumber = &n
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// CreateSnapshot stores a new snapshot and its instances.
func (s *SQLiteStore) CreateSnapshot(ctx context.Context, robloxUserID int64, totals model.SnapshotTotals, instances []model.Instance) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	snap := &model.Snapshot{
		ID:           uid.New(),
		RobloxUserID: robloxUserID,
		TotalRAP:     totals.TotalRAP,
		TotalItems:   totals.TotalItems,
		UniqueItems:  totals.UniqueItems,
		CreatedAt:    now,
		UpdatedAt:    now,
		Instances:    instances,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, roblox_user_id, total_rap, total_items, unique_items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.RobloxUserID, snap.TotalRAP, snap.TotalItems, snap.UniqueItems, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	if err := insertSQLiteInstances(ctx, tx, snap.ID, instances); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return snap, nil
}

func insertSQLiteInstances(ctx context.Context, tx *sql.Tx, snapshotID string, instances []model.Instance) error {
	if len(instances) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_items (snapshot_id, user_asset_id, asset_id, serial_number, scanned_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, inst := range instances {
		scannedAt := inst.ScannedAt
		if scannedAt.IsZero() {
			scannedAt = time.Now().UTC()
		}
		var serial interface{}
		if inst.SerialNumber != nil {
			serial = *inst.SerialNumber
		}
		if _, err := stmt.ExecContext(ctx, snapshotID, inst.UserAssetID, inst.AssetID, serial, scannedAt); err != nil {
			return fmt.Errorf("failed to insert instance %d: %w", inst.UserAssetID, err)
		}
	}
	return nil
}

// AddInstances inserts instance rows into an existing snapshot.
func (s *SQLiteStore) AddInstances(ctx context.Context, snapshotID string, instances []model.Instance) error {
	if len(instances) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSQLiteInstances(ctx, tx, snapshotID, instances); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET updated_at = ? WHERE id = ?`, time.Now().UTC(), snapshotID); err != nil {
		return fmt.Errorf("failed to touch snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveInstances deletes instance rows from a snapshot by instance ID.
func (s *SQLiteStore) RemoveInstances(ctx context.Context, snapshotID string, userAssetIDs []int64) error {
	if len(userAssetIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]interface{}, 0, len(userAssetIDs)+1)
	args = append(args, snapshotID)
	for _, id := range userAssetIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`DELETE FROM snapshot_items WHERE snapshot_id = ? AND user_asset_id IN (%s)`,
		placeholders(len(userAssetIDs)))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove instances: %w", err)
	}
	return nil
}

// UpdateSnapshotTotals recomputes the aggregate columns of a snapshot.
func (s *SQLiteStore) UpdateSnapshotTotals(ctx context.Context, snapshotID string, totals model.SnapshotTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE snapshots SET total_rap = ?, total_items = ?, unique_items = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query,
		totals.TotalRAP, totals.TotalItems, totals.UniqueItems, time.Now().UTC(), snapshotID); err != nil {
		return fmt.Errorf("failed to update snapshot totals: %w", err)
	}
	return nil
}

// ItemOwners lists holders whose latest snapshot contains the asset.
func (s *SQLiteStore) ItemOwners(ctx context.Context, assetID int64) ([]model.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT h.roblox_user_id, h.username, h.display_name, h.avatar_url,
		       COUNT(si.id), MIN(si.serial_number)
		FROM snapshot_items si
		JOIN snapshots s ON s.id = si.snapshot_id
		JOIN holders h ON h.roblox_user_id = s.roblox_user_id
		WHERE si.asset_id = ?
		  AND s.id = (
			SELECT id FROM snapshots s2
			WHERE s2.roblox_user_id = s.roblox_user_id
			ORDER BY s2.created_at DESC LIMIT 1
		  )
		GROUP BY h.roblox_user_id, h.username, h.display_name, h.avatar_url
		ORDER BY h.username`

	rows, err := s.db.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item owners: %w", err)
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		var o model.Owner
		var serial sql.NullInt64
		if err := rows.Scan(&o.RobloxUserID, &o.Username, &o.DisplayName, &o.AvatarURL, &o.Copies, &serial); err != nil {
			return nil, err
		}
		if serial.Valid {
			n := int(serial.Int64)
			o.SerialNumber = &n
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// GetStats returns statistics about the collectibles database.
func (s *SQLiteStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	counts := map[string]string{
		"total_items":     "SELECT COUNT(*) FROM items",
		"total_holders":   "SELECT COUNT(*) FROM holders",
		"total_snapshots": "SELECT COUNT(*) FROM snapshots",
		"total_instances": "SELECT COUNT(*) FROM snapshot_items",
	}
	for key, query := range counts {
		var count int64
		if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, err
		}
		stats[key] = count
	}

	// Last reconciliation time
	var lastSync sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM snapshots").Scan(&lastSync); err == nil && lastSync.Valid {
		stats["last_sync"] = lastSync.Time
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements CollectiblesStore
var _ CollectiblesStore = (*SQLiteStore)(nil)
