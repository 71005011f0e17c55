package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"relquery/internal/sqlutil"
)

// RoleExecutor executes queries under SET ROLE on a dedicated connection.
type RoleExecutor struct {
	db           *sql.DB
	schema       string
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB *sql.DB
	// Schema, when set, becomes the connection's search_path.
	Schema       string
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each query.
// This enables database enforced security (grants, row level security) based
// on the role extracted from the request context.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	return &RoleExecutor{
		db:           cfg.DB,
		schema:       cfg.Schema,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, cleanup, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &roleAwareRows{Rows: rows, cleanup: cleanup}, nil
}

func (e *RoleExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, cleanup, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return conn.ExecContext(ctx, query, args...)
}

// prepare acquires a connection and switches it to the request's role. The
// returned cleanup resets the session before the connection goes back to
// the pool.
func (e *RoleExecutor) prepare(ctx context.Context) (*sql.Conn, func(), error) {
	if e.db == nil {
		return nil, nil, sql.ErrConnDone
	}
	role, ok := e.roleFromCtx(ctx)
	if ok && role != "" && e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return nil, nil, fmt.Errorf("role not allowed: %s", role)
		}
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	cleanup := func() {
		_, _ = conn.ExecContext(context.Background(), "RESET ROLE")
		if e.schema != "" {
			_, _ = conn.ExecContext(context.Background(), "RESET search_path")
		}
		_ = conn.Close()
	}

	if ok && role != "" {
		// SET ROLE takes no bind parameters; the role is quoted as an identifier.
		if _, err := conn.ExecContext(ctx, "SET ROLE "+sqlutil.QuoteIdentifier(role)); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to set role %s: %w", role, err)
		}
	}
	if e.schema != "" {
		if _, err := conn.ExecContext(ctx, "SET search_path TO "+sqlutil.QuoteIdentifier(e.schema)); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to select schema %s: %w", e.schema, err)
		}
	}
	return conn, cleanup, nil
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
