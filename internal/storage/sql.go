package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/render"
)

//go:embed migrations.sql
var migrations embed.FS

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnString returns DSN when set, otherwise builds one for the driver.
func (c DatabaseConfig) ConnString() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode), nil
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", c.User, c.Password, c.Host, c.Port, c.DBName), nil
	case DriverSQLite:
		if c.DBName == "" {
			return ":memory:", nil
		}
		return c.DBName, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", c.Driver)
}

type SQLStorage struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func NewSQLStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	connStr, err := config.ConnString()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if config.Driver == DriverSQLite {
		// Each pooled connection to :memory: would be a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &SQLStorage{db: db, driver: config.Driver, logger: logger}
	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to database", zap.String("driver", config.Driver))
	return storage, nil
}

func (s *SQLStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	for _, stmt := range strings.Split(string(migrationSQL), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) Placeholder(n int) string {
	if s.driver == DriverPostgres {
		return render.Dollar(n)
	}
	return render.Question(n)
}

func (s *SQLStorage) bind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	n := 0
	var b strings.Builder
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(render.Dollar(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := s.bind(`
		SELECT user_id, full_name, email, role, department, last_login, location
		FROM user_profile
		WHERE user_id = ?`)

	p := &models.UserProfile{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.FullName, &p.Email, &p.Role, &p.Department, &p.LastLogin, &p.Location,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying profile: %w", err)
	}
	return p, nil
}

// SaveProfile replaces the stored profile for profile.UserID.
func (s *SQLStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM user_profile WHERE user_id = ?`), profile.UserID); err != nil {
		return fmt.Errorf("error replacing profile: %w", err)
	}

	query := s.bind(`
		INSERT INTO user_profile (user_id, full_name, email, role, department, last_login, location)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query,
		profile.UserID,
		profile.FullName,
		profile.Email,
		profile.Role,
		profile.Department,
		profile.LastLogin,
		profile.Location,
	); err != nil {
		return fmt.Errorf("error saving profile: %w", err)
	}

	return tx.Commit()
}

// Query runs stmt inside a read-only transaction. sqlite has no read-only
// transaction mode, so statements must be vetted before they get here.
func (s *SQLStorage) Query(ctx context.Context, stmt render.Statement) (*models.QueryResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.driver != DriverSQLite})
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading columns: %w", err)
	}

	result := &models.QueryResult{Columns: columns, Data: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Data = append(result.Data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	s.logger.Debug("Query executed", zap.Int("rows", len(result.Data)))
	return result, nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
