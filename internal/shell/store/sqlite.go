package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/minideploy/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is fixed-width so that lexical order equals chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	// One connection: writes are serialized and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return createDeployment(ctx, s.db, deployment)
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return getDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error) {
	return listDeployments(ctx, s.db, opts)
}

func (s *SQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	return deleteDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	return updateStatus(ctx, s.db, id, status)
}

func (s *SQLiteStore) AppendBuildLog(ctx context.Context, id, text string) error {
	return appendBuildLog(ctx, s.db, id, text)
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, id, containerHandle string) error {
	return markRunning(ctx, s.db, id, containerHandle)
}

func (s *SQLiteStore) FailDeployment(ctx context.Context, id, diagnostic string) error {
	return failDeployment(ctx, s.db, id, diagnostic)
}

// WithTx runs fn inside a transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return createDeployment(ctx, s.tx, deployment)
}

func (s *txSQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return getDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error) {
	return listDeployments(ctx, s.tx, opts)
}

func (s *txSQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	return deleteDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	return updateStatus(ctx, s.tx, id, status)
}

func (s *txSQLiteStore) AppendBuildLog(ctx context.Context, id, text string) error {
	return appendBuildLog(ctx, s.tx, id, text)
}

func (s *txSQLiteStore) MarkRunning(ctx context.Context, id, containerHandle string) error {
	return markRunning(ctx, s.tx, id, containerHandle)
}

func (s *txSQLiteStore) FailDeployment(ctx context.Context, id, diagnostic string) error {
	return failDeployment(ctx, s.tx, id, diagnostic)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	ID              string `db:"id"`
	Name            string `db:"name"`
	SourceLocation  string `db:"source_location"`
	ImageTag        string `db:"image_tag"`
	ContainerHandle string `db:"container_handle"`
	Status          string `db:"status"`
	BuildLog        string `db:"build_log"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

func createDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) error {
	query := `
		INSERT INTO deployments (
			id, name, source_location, image_tag, container_handle,
			status, build_log, created_at, updated_at
		) VALUES (
			:id, :name, :source_location, :image_tag, :container_handle,
			:status, :build_log, :created_at, :updated_at
		)`

	row := map[string]any{
		"id":               deployment.ID,
		"name":             deployment.Name,
		"source_location":  deployment.SourceLocation,
		"image_tag":        deployment.ImageTag,
		"container_handle": deployment.ContainerHandle,
		"status":           deployment.Status.String(),
		"build_log":        deployment.BuildLog,
		"created_at":       formatTime(deployment.CreatedAt),
		"updated_at":       formatTime(deployment.UpdatedAt),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployments.id") {
			return NewStoreError("CreateDeployment", deployment.ID, "deployment already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateDeployment", deployment.ID, err.Error(), err)
	}

	return nil
}

func getDeployment(ctx context.Context, exec executor, id string) (*domain.Deployment, error) {
	query := `SELECT * FROM deployments WHERE id = ?`

	var row deploymentRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", id, err.Error(), err)
	}

	return rowToDeployment(&row)
}

func listDeployments(ctx context.Context, exec executor, opts ListOptions) ([]domain.Deployment, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows, query, opts.sqlLimit(), opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeployments", "", err.Error(), err)
	}

	deployments := make([]domain.Deployment, 0, len(rows))
	for _, row := range rows {
		deployment, err := rowToDeployment(&row)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *deployment)
	}

	return deployments, nil
}

func deleteDeployment(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM deployments WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteDeployment", id, err.Error(), err)
	}

	return requireRow(result, "DeleteDeployment", id)
}

func updateStatus(ctx context.Context, exec executor, id string, status domain.Status) error {
	query := `UPDATE deployments SET status = ?, updated_at = ? WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, status.String(), now(), id)
	if err != nil {
		return NewStoreError("UpdateStatus", id, err.Error(), err)
	}

	return requireRow(result, "UpdateStatus", id)
}

func appendBuildLog(ctx context.Context, exec executor, id, text string) error {
	if text == "" {
		return nil
	}
	query := `UPDATE deployments SET build_log = build_log || ?, updated_at = ? WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, text, now(), id)
	if err != nil {
		return NewStoreError("AppendBuildLog", id, err.Error(), err)
	}

	return requireRow(result, "AppendBuildLog", id)
}

func markRunning(ctx context.Context, exec executor, id, containerHandle string) error {
	query := `UPDATE deployments SET container_handle = ?, status = ?, updated_at = ? WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, containerHandle, domain.StatusRunning.String(), now(), id)
	if err != nil {
		return NewStoreError("MarkRunning", id, err.Error(), err)
	}

	return requireRow(result, "MarkRunning", id)
}

func failDeployment(ctx context.Context, exec executor, id, diagnostic string) error {
	query := `UPDATE deployments SET status = ?, build_log = build_log || ?, updated_at = ? WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, domain.StatusFailed.String(), domain.FailureMarker+diagnostic, now(), id)
	if err != nil {
		return NewStoreError("FailDeployment", id, err.Error(), err)
	}

	return requireRow(result, "FailDeployment", id)
}

func requireRow(result sql.Result, op, id string) error {
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError(op, id, "deployment not found", ErrNotFound)
	}
	return nil
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

// rowToDeployment converts a database row to a domain.Deployment.
func rowToDeployment(row *deploymentRow) (*domain.Deployment, error) {
	status, err := domain.ParseStatus(row.Status)
	if err != nil {
		return nil, NewStoreError("rowToDeployment", row.ID, "failed to parse status", ErrInvalidData)
	}

	return &domain.Deployment{
		ID:              row.ID,
		Name:            row.Name,
		SourceLocation:  row.SourceLocation,
		ImageTag:        row.ImageTag,
		ContainerHandle: row.ContainerHandle,
		Status:          status,
		BuildLog:        row.BuildLog,
		CreatedAt:       parseTime(row.CreatedAt),
		UpdatedAt:       parseTime(row.UpdatedAt),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func now() string {
	return formatTime(time.Now())
}
