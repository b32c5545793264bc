package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
)

var ts = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return NewStore(db), mock
}

func userRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "privilege", "created_at", "updated_at", "deleted_at"}).
		AddRow("u1", "alice", "alice@example.com", "hash", "ADMIN", ts, ts, nil)
}

func sessionRow(deletedAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "secret_hash", "user_id", "created_at", "last_verified_at",
		"uid", "username", "email", "password_hash", "privilege", "ucreated", "uupdated", "deleted_at"}).
		AddRow("s1", "aGFzaA==", "u1", ts, ts, "u1", "alice", "alice@example.com", "hash", "BASIC", ts, ts, deletedAt)
}

func TestUserFindByID(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=? LIMIT 1")).
		WithArgs("u1").WillReturnRows(userRow())

	u, err := st.Users().FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || u.Privilege != model.PrivilegeAdmin || !u.Active() {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestUserFindByIDMissing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("FROM users WHERE id").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	u, err := st.Users().FindByID(context.Background(), "nope")
	if err != nil || u != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", u, err)
	}
}

func TestUserFindByUsernameActiveOnly(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE username=? AND deleted_at IS NULL LIMIT 1")).
		WithArgs("alice").WillReturnRows(userRow())

	if _, err := st.Users().FindByUsername(context.Background(), "alice", true); err != nil {
		t.Fatal(err)
	}
}

func TestUserCreateDuplicateIsConflict(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := st.Users().Create(context.Background(), &model.User{ID: "u2", Username: "alice", Privilege: model.PrivilegeBasic})
	if apperror.StatusOf(err) != 409 {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestUserFindManyBuildsFilters(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE deleted_at IS NULL AND (id = ? OR username LIKE ? OR email LIKE ?) AND seq < (SELECT c.seq FROM users c WHERE c.id = ?) ORDER BY seq DESC LIMIT ?")).
		WithArgs("50%_off", `%50\%\_off%`, `%50\%\_off%`, "u9", 5).
		WillReturnRows(userRow())

	list, err := st.Users().FindMany(context.Background(), model.UserQuery{SearchTerm: "50%_off", Cursor: "u9", PageSize: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("want 1 row, got %d", len(list))
	}
}

func TestUserUpdateOnlyGivenColumns(t *testing.T) {
	st, mock := newMock(t)
	email := "new@example.com"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET updated_at=?,email=? WHERE id=?")).
		WithArgs(ts, email, "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM users WHERE id").WithArgs("u1").WillReturnRows(userRow())

	if _, err := st.Users().Update(context.Background(), "u1", model.UserUpdate{Email: &email}, ts); err != nil {
		t.Fatal(err)
	}
}

func TestUserSoftDeleteMissingIsNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec("UPDATE users SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM users WHERE id").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := st.Users().SoftDelete(context.Background(), "ghost", ts)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestCountActiveAtTopPrivilegeLocksRows(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("privilege=? AND deleted_at IS NULL FOR UPDATE")).
		WithArgs("ADMIN").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))

	n, err := st.Users().CountActiveAtTopPrivilege(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestSessionFindJoinsUser(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("FROM sessions s JOIN users u").WithArgs("s1").WillReturnRows(sessionRow(ts))

	s, err := st.Sessions().FindByID(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if s.User.Username != "alice" || s.User.Active() {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestSessionDeleteMissing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("FROM sessions s JOIN users u").WithArgs("s1").WillReturnError(sql.ErrNoRows)

	_, err := st.Sessions().Delete(context.Background(), "s1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestSessionDeleteAllForUser(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id=?")).
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := st.Sessions().DeleteAllForUser(context.Background(), "u1")
	if err != nil || n != 3 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("a1", "READ", "u1", "alice", "USER", "u2", `{"userIdSnapshot":"u2","userNameSnapshot":"bob"}`, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE action = ? ORDER BY seq DESC LIMIT ?")).
		WithArgs("READ", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "actor_id", "actor_username", "subject_kind", "subject_snapshot", "created_at"}).
			AddRow("a1", "READ", "u1", "alice", "USER", []byte(`{"userIdSnapshot":"u2","userNameSnapshot":"bob"}`), ts))

	e := &model.AuditLogEntry{ID: "a1", Action: model.ActionRead, ActorID: "u1", ActorUsername: "alice", CreatedAt: ts,
		Subject: model.UserSubject{UserID: "u2", Username: "bob"}}
	if err := st.Audit().Append(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	list, err := st.Audit().List(context.Background(), model.AuditQuery{Action: model.ActionRead})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Subject != (model.UserSubject{UserID: "u2", Username: "bob"}) {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(tx service.Store) error {
		_, err := tx.Sessions().DeleteAllForUser(context.Background(), "u1")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	st, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(tx service.Store) error {
		if _, err := tx.Sessions().DeleteAllForUser(context.Background(), "u1"); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return tx.InTx(context.Background(), func(service.Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}
