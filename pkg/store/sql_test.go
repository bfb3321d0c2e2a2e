package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for range schemaStatements {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	store, err := NewSQLStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store, mock
}

func TestSQLStore_UpsertWritesAllTables(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_servers WHERE id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_args WHERE server_id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_env WHERE server_id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_headers WHERE server_id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO mcp_servers").
		WithArgs("fs", "filesystem", "local files", "STDIO", "", "npx",
			30, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mcp_server_args").
		WithArgs("fs", 0, "-y").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mcp_server_args").
		WithArgs("fs", 1, "@modelcontextprotocol/server-filesystem").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mcp_server_env").
		WithArgs("fs", "HOME", "/data").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	spec := &ServerSpec{
		ID:             "fs",
		Name:           "filesystem",
		Description:    "local files",
		Type:           "STDIO",
		Command:        "npx",
		Args:           []string{"-y", "@modelcontextprotocol/server-filesystem"},
		Env:            map[string]string{"HOME": "/data"},
		TimeoutSeconds: 30,
	}
	if err := store.Upsert(context.Background(), spec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if spec.CreatedAt.IsZero() || spec.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStore_UpsertWritesHeaders(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_servers WHERE id = ?`)).
		WithArgs("web").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_args WHERE server_id = ?`)).
		WithArgs("web").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_env WHERE server_id = ?`)).
		WithArgs("web").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_headers WHERE server_id = ?`)).
		WithArgs("web").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO mcp_servers").
		WithArgs("web", "web search", "", "SSE", "https://mcp.example.com/sse", "",
			0, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mcp_server_headers").
		WithArgs("web", "Authorization", "Bearer tok").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	spec := &ServerSpec{
		ID:      "web",
		Name:    "web search",
		Type:    "SSE",
		URL:     "https://mcp.example.com/sse",
		Headers: map[string]string{"Authorization": "Bearer tok"},
	}
	if err := store.Upsert(context.Background(), spec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStore_UpsertRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_servers WHERE id = ?`)).
		WithArgs("fs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Upsert(context.Background(), &ServerSpec{ID: "fs", Name: "filesystem", Type: "STDIO"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStore_GetAssemblesSpec(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name, description, type, url, command, timeout, disabled").
		WithArgs("web").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "type", "url", "command",
			"timeout", "disabled", "created_at", "updated_at",
		}).AddRow("web", "web search", nil, "SSE", "https://mcp.example.com/sse", nil, 0, true, now, now))
	mock.ExpectQuery("SELECT arg FROM mcp_server_args").
		WithArgs("web").
		WillReturnRows(sqlmock.NewRows([]string{"arg"}))
	mock.ExpectQuery("SELECT env_key, env_value FROM mcp_server_env").
		WithArgs("web").
		WillReturnRows(sqlmock.NewRows([]string{"env_key", "env_value"}).AddRow("API_KEY", "s3cret"))
	mock.ExpectQuery("SELECT header_name, header_value FROM mcp_server_headers").
		WithArgs("web").
		WillReturnRows(sqlmock.NewRows([]string{"header_name", "header_value"}).
			AddRow("Authorization", "Bearer tok"))

	spec, err := store.Get(context.Background(), "web")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if spec.Type != "SSE" || spec.URL != "https://mcp.example.com/sse" {
		t.Errorf("unexpected spec: %+v", spec)
	}
	if !spec.Disabled {
		t.Error("disabled flag lost")
	}
	if spec.Env["API_KEY"] != "s3cret" {
		t.Errorf("env lost: %+v", spec.Env)
	}
	if spec.Headers["Authorization"] != "Bearer tok" {
		t.Errorf("headers lost: %+v", spec.Headers)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStore_GetMissingReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, description").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "type", "url", "command",
			"timeout", "disabled", "created_at", "updated_at",
		}))

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_ListPreservesArgOrder(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name, description, type, url, command, timeout, disabled").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "type", "url", "command",
			"timeout", "disabled", "created_at", "updated_at",
		}).AddRow("fs", "filesystem", nil, "STDIO", nil, "npx", 0, false, now, now))
	mock.ExpectQuery("SELECT arg FROM mcp_server_args").
		WithArgs("fs").
		WillReturnRows(sqlmock.NewRows([]string{"arg"}).AddRow("-y").AddRow("pkg").AddRow("--root=/"))
	mock.ExpectQuery("SELECT env_key, env_value").
		WithArgs("fs").
		WillReturnRows(sqlmock.NewRows([]string{"env_key", "env_value"}))
	mock.ExpectQuery("SELECT header_name, header_value").
		WithArgs("fs").
		WillReturnRows(sqlmock.NewRows([]string{"header_name", "header_value"}))

	specs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}
	want := []string{"-y", "pkg", "--root=/"}
	if len(specs[0].Args) != len(want) {
		t.Fatalf("args = %v, want %v", specs[0].Args, want)
	}
	for i := range want {
		if specs[0].Args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, specs[0].Args[i], want[i])
		}
	}
}

func TestSQLStore_DeleteRemovesDependentRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_args WHERE server_id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_env WHERE server_id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_server_headers WHERE server_id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM mcp_servers WHERE id = ?`)).
		WithArgs("fs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Delete(context.Background(), "fs"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
