package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func staticRole(role string, ok bool) func(context.Context) (string, bool) {
	return func(context.Context) (string, bool) { return role, ok }
}

func TestRoleExecutorConfig(t *testing.T) {
	executor := NewRoleExecutor(RoleExecutorConfig{
		RoleFromCtx:  staticRole("test_role", true),
		AllowedRoles: []string{"app_admin", "app_analyst"},
		ValidateRole: true,
	})
	if len(executor.allowedRoles) != 2 {
		t.Errorf("expected 2 allowed roles, got %d", len(executor.allowedRoles))
	}
	if _, ok := executor.allowedRoles["app_admin"]; !ok {
		t.Error("expected app_admin to be in allowed roles")
	}
	if !executor.validateRole {
		t.Error("expected validateRole to be true")
	}
}

func TestRoleExecutorQuerySetsAndResetsRole(t *testing.T) {
	db, mock := newMock(t)
	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:           db,
		Schema:       "app",
		RoleFromCtx:  staticRole("app_analyst", true),
		AllowedRoles: []string{"app_analyst"},
		ValidateRole: true,
	})

	mock.ExpectExec(`SET ROLE "app_analyst"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET search_path TO "app"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec(`RESET ROLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`RESET search_path`).WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := executor.QueryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	var n int
	for rows.Next() {
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRoleExecutorWithoutRole(t *testing.T) {
	db, mock := newMock(t)
	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:          db,
		RoleFromCtx: staticRole("", false),
	})

	mock.ExpectExec(`DELETE FROM "t"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`RESET ROLE`).WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := executor.ExecContext(context.Background(), `DELETE FROM "t"`)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if affected, _ := res.RowsAffected(); affected != 3 {
		t.Errorf("expected 3 rows affected, got %d", affected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRoleExecutorRejectsUnlistedRole(t *testing.T) {
	db, mock := newMock(t)
	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:           db,
		RoleFromCtx:  staticRole("superuser", true),
		AllowedRoles: []string{"app_admin"},
		ValidateRole: true,
	})

	if _, err := executor.QueryContext(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected role rejection")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected statements: %v", err)
	}
}

func TestRoleExecutorSetRoleFailure(t *testing.T) {
	db, mock := newMock(t)
	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:          db,
		RoleFromCtx: staticRole("missing", true),
	})

	mock.ExpectExec(`SET ROLE "missing"`).WillReturnError(errors.New("role does not exist"))
	mock.ExpectExec(`RESET ROLE`).WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := executor.QueryContext(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected set role failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStandardExecutor(t *testing.T) {
	t.Run("nil db returns error", func(t *testing.T) {
		executor := &StandardExecutor{db: nil}
		if _, err := executor.QueryContext(context.Background(), "SELECT 1"); err != sql.ErrConnDone {
			t.Errorf("expected ErrConnDone, got %v", err)
		}
		if _, err := executor.ExecContext(context.Background(), "SELECT 1"); err != sql.ErrConnDone {
			t.Errorf("expected ErrConnDone, got %v", err)
		}
		if _, err := executor.BeginTx(context.Background(), nil); err != sql.ErrConnDone {
			t.Errorf("expected ErrConnDone, got %v", err)
		}
	})

	t.Run("queries pass through", func(t *testing.T) {
		db, mock := newMock(t)
		executor := NewStandardExecutor(db)
		mock.ExpectQuery(`SELECT $1`).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))

		rows, err := executor.QueryContext(context.Background(), "SELECT $1", 7)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		_ = rows.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestInTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "id" FROM "users" FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		err := InTx(context.Background(), NewStandardExecutor(db), func(tx *TxExecutor) error {
			rows, err := tx.QueryContext(context.Background(), `SELECT "id" FROM "users" FOR UPDATE`)
			if err != nil {
				return err
			}
			return rows.Close()
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := InTx(context.Background(), NewStandardExecutor(db), func(*TxExecutor) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}
