package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema statements shared by SQLite and MySQL. Timestamps are written by
// the application so no engine-specific defaults are needed.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS mcp_servers (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		type VARCHAR(32) NOT NULL,
		url TEXT,
		command TEXT,
		timeout INTEGER NOT NULL DEFAULT 0,
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mcp_server_args (
		server_id VARCHAR(64) NOT NULL,
		position INTEGER NOT NULL,
		arg TEXT NOT NULL,
		PRIMARY KEY (server_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS mcp_server_env (
		server_id VARCHAR(64) NOT NULL,
		env_key VARCHAR(255) NOT NULL,
		env_value TEXT NOT NULL,
		PRIMARY KEY (server_id, env_key)
	)`,
	`CREATE TABLE IF NOT EXISTS mcp_server_headers (
		server_id VARCHAR(64) NOT NULL,
		header_name VARCHAR(255) NOT NULL,
		header_value TEXT NOT NULL,
		PRIMARY KEY (server_id, header_name)
	)`,
}

// SQLStore implements Store on a database/sql pool.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open pool and ensures the schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Upsert replaces the spec row and rewrites dependent rows in one
// transaction. DELETE then INSERT keeps the SQL portable across engines.
func (s *SQLStore) Upsert(ctx context.Context, spec *ServerSpec) error {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	spec.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ?`, spec.ID); err != nil {
		return fmt.Errorf("clearing server row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mcp_server_args WHERE server_id = ?`, spec.ID); err != nil {
		return fmt.Errorf("clearing args: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mcp_server_env WHERE server_id = ?`, spec.ID); err != nil {
		return fmt.Errorf("clearing env: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mcp_server_headers WHERE server_id = ?`, spec.ID); err != nil {
		return fmt.Errorf("clearing headers: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO mcp_servers (id, name, description, type, url, command, timeout, disabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.ID, spec.Name, spec.Description, spec.Type, spec.URL, spec.Command,
		spec.TimeoutSeconds, spec.Disabled, spec.CreatedAt, spec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}

	for i, arg := range spec.Args {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mcp_server_args (server_id, position, arg) VALUES (?, ?, ?)`,
			spec.ID, i, arg,
		); err != nil {
			return fmt.Errorf("inserting arg %d: %w", i, err)
		}
	}
	for k, v := range spec.Env {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mcp_server_env (server_id, env_key, env_value) VALUES (?, ?, ?)`,
			spec.ID, k, v,
		); err != nil {
			return fmt.Errorf("inserting env %s: %w", k, err)
		}
	}
	for k, v := range spec.Headers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mcp_server_headers (server_id, header_name, header_value) VALUES (?, ?, ?)`,
			spec.ID, k, v,
		); err != nil {
			return fmt.Errorf("inserting header %s: %w", k, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM mcp_server_args WHERE server_id = ?`,
		`DELETE FROM mcp_server_env WHERE server_id = ?`,
		`DELETE FROM mcp_server_headers WHERE server_id = ?`,
		`DELETE FROM mcp_servers WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, id string) (*ServerSpec, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, type, url, command, timeout, disabled, created_at, updated_at
		 FROM mcp_servers WHERE id = ?`, id)

	spec, err := scanSpec(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}
	if err := s.loadDetails(ctx, spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *SQLStore) List(ctx context.Context) ([]*ServerSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, type, url, command, timeout, disabled, created_at, updated_at
		 FROM mcp_servers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var specs []*ServerSpec
	for rows.Next() {
		spec, err := scanSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := s.loadDetails(ctx, spec); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpec(r rowScanner) (*ServerSpec, error) {
	var spec ServerSpec
	var description, url, command sql.NullString
	if err := r.Scan(&spec.ID, &spec.Name, &description, &spec.Type, &url, &command,
		&spec.TimeoutSeconds, &spec.Disabled, &spec.CreatedAt, &spec.UpdatedAt); err != nil {
		return nil, err
	}
	spec.Description = description.String
	spec.URL = url.String
	spec.Command = command.String
	return &spec, nil
}

func (s *SQLStore) loadDetails(ctx context.Context, spec *ServerSpec) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT arg FROM mcp_server_args WHERE server_id = ? ORDER BY position`, spec.ID)
	if err != nil {
		return fmt.Errorf("querying args: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var arg string
		if err := rows.Scan(&arg); err != nil {
			return err
		}
		spec.Args = append(spec.Args, arg)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	envRows, err := s.db.QueryContext(ctx,
		`SELECT env_key, env_value FROM mcp_server_env WHERE server_id = ?`, spec.ID)
	if err != nil {
		return fmt.Errorf("querying env: %w", err)
	}
	defer envRows.Close()
	for envRows.Next() {
		var k, v string
		if err := envRows.Scan(&k, &v); err != nil {
			return err
		}
		if spec.Env == nil {
			spec.Env = make(map[string]string)
		}
		spec.Env[k] = v
	}
	if err := envRows.Err(); err != nil {
		return err
	}

	hdrRows, err := s.db.QueryContext(ctx,
		`SELECT header_name, header_value FROM mcp_server_headers WHERE server_id = ?`, spec.ID)
	if err != nil {
		return fmt.Errorf("querying headers: %w", err)
	}
	defer hdrRows.Close()
	for hdrRows.Next() {
		var k, v string
		if err := hdrRows.Scan(&k, &v); err != nil {
			return err
		}
		if spec.Headers == nil {
			spec.Headers = make(map[string]string)
		}
		spec.Headers[k] = v
	}
	return hdrRows.Err()
}
