package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
)

func ptr[T any](v T) *T { return &v }

func TestLastAdminCannotDeleteSelf(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	before := len(f.store.AuditEntries())

	_, err := f.users.SoftDeleteSelf(context.Background(), "id-root")
	if !errors.Is(err, apperror.ErrLastPrivilegedPrincipal) {
		t.Fatalf("want last privileged principal, got %v", err)
	}
	if apperror.StatusOf(err) != 400 {
		t.Fatalf("status = %d", apperror.StatusOf(err))
	}
	u, _ := f.store.Users().FindByID(context.Background(), "id-root")
	if !u.Active() {
		t.Fatal("root must remain active")
	}
	if len(f.store.AuditEntries()) != before {
		t.Fatal("a rejected deletion must not be audited")
	}
}

func TestAdminCanDeleteSelfWhenAnotherRemains(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("ops", model.PrivilegeAdmin)
	sec := f.login("root")

	res, err := f.users.SoftDeleteSelf(context.Background(), "id-root")
	if err != nil {
		t.Fatalf("delete self: %v", err)
	}
	if res.ID != "id-root" || res.DeletedAt.IsZero() {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.validate(sec) != nil {
		t.Fatal("sessions of a deleted user must be revoked")
	}
	n, _ := f.store.Users().CountActiveAtTopPrivilege(context.Background())
	if n != 1 {
		t.Fatalf("want 1 active admin left, got %d", n)
	}

	_, err = f.users.SoftDeleteSelf(context.Background(), "id-ops")
	if !errors.Is(err, apperror.ErrLastPrivilegedPrincipal) {
		t.Fatalf("the remaining admin must be protected, got %v", err)
	}
}

func TestLastAdminCannotDemoteSelf(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)

	_, err := f.users.UpdateSelf(context.Background(), "id-root", service.UpdateUserInput{Privilege: ptr(model.PrivilegeBasic)})
	if !errors.Is(err, apperror.ErrLastPrivilegedPrincipal) {
		t.Fatalf("want last privileged principal, got %v", err)
	}

	f.seed("ops", model.PrivilegeAdmin)
	u, err := f.users.UpdateSelf(context.Background(), "id-root", service.UpdateUserInput{Privilege: ptr(model.PrivilegeBasic)})
	if err != nil {
		t.Fatalf("demote with another admin present: %v", err)
	}
	if u.Privilege != model.PrivilegeBasic {
		t.Fatalf("privilege = %s", u.Privilege)
	}
}

func TestCannotSelfPromote(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)

	_, err := f.users.UpdateSelf(context.Background(), "id-bob", service.UpdateUserInput{Privilege: ptr(model.PrivilegeAdmin)})
	if !errors.Is(err, &apperror.Error{Kind: apperror.KindForbidden}) {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestSoftDeleteOtherRevokesSessions(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	s1 := f.login("bob")
	s2 := f.login("bob")

	if _, err := f.users.SoftDeleteOther(context.Background(), "id-root", "id-bob"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	for _, s := range []string{s1.ID, s2.ID} {
		got, _ := f.store.Sessions().FindByID(context.Background(), s)
		if got != nil {
			t.Fatalf("session %s survived deletion of its owner", s)
		}
	}
	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	if last.Action != model.ActionSoftDelete || last.ActorID != "id-root" {
		t.Fatalf("unexpected last entry %+v", last)
	}
	if sub, ok := last.Subject.(model.UserSubject); !ok || sub.Username != "bob" {
		t.Fatalf("unexpected subject %#v", last.Subject)
	}
}

func TestPeersCannotManageEachOther(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("ops", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	f.seed("carol", model.PrivilegeBasic)
	ctx := context.Background()
	forbidden := &apperror.Error{Kind: apperror.KindForbidden}

	if _, err := f.users.SoftDeleteOther(ctx, "id-bob", "id-carol"); !errors.Is(err, forbidden) {
		t.Fatalf("basic deleting basic: want forbidden, got %v", err)
	}
	if _, err := f.users.SoftDeleteOther(ctx, "id-root", "id-ops"); !errors.Is(err, forbidden) {
		t.Fatalf("admin deleting admin: want forbidden, got %v", err)
	}
	if _, err := f.users.UpdateOther(ctx, "id-bob", "id-root", service.UpdateUserInput{Email: ptr("x@example.com")}); !errors.Is(err, forbidden) {
		t.Fatalf("basic updating admin: want forbidden, got %v", err)
	}
}

func TestSoftDeleteOtherRejectsSelfAndMissing(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	ctx := context.Background()

	if _, err := f.users.SoftDeleteOther(ctx, "id-root", "id-root"); apperror.StatusOf(err) != 400 {
		t.Fatalf("self via other endpoint: want 400, got %v", err)
	}
	if _, err := f.users.SoftDeleteOther(ctx, "id-root", "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	ctx := context.Background()

	u, err := f.users.Create(ctx, "id-root", service.CreateUserInput{
		Username: " dave ", Email: "dave@example.com", Password: "dave-pw",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Username != "dave" || u.Privilege != model.PrivilegeBasic || u.ID == "" {
		t.Fatalf("unexpected user %+v", u)
	}
	if f.login("dave").ID == "" {
		t.Fatal("new user should be able to log in")
	}

	_, err = f.users.Create(ctx, "id-root", service.CreateUserInput{Username: "DAVE", Email: "d2@example.com", Password: "pw"})
	if !errors.Is(err, &apperror.Error{Kind: apperror.KindConflict}) {
		t.Fatalf("duplicate username: want conflict, got %v", err)
	}
	_, err = f.users.Create(ctx, "id-bob", service.CreateUserInput{Username: "eve", Email: "eve@example.com", Password: "pw", Privilege: model.PrivilegeAdmin})
	if !errors.Is(err, &apperror.Error{Kind: apperror.KindForbidden}) {
		t.Fatalf("granting above own privilege: want forbidden, got %v", err)
	}
	_, err = f.users.Create(ctx, "id-root", service.CreateUserInput{Username: "", Email: "x@example.com", Password: "pw"})
	if apperror.StatusOf(err) != 400 {
		t.Fatalf("empty username: want 400, got %v", err)
	}
}

func TestFindByIDRecordsRead(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	ctx := context.Background()

	u, err := f.users.FindByID(ctx, "id-bob", "id-root")
	if err != nil || u.Username != "root" {
		t.Fatalf("find: %v %+v", err, u)
	}
	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	if last.Action != model.ActionRead || last.ActorID != "id-bob" || last.Subject.SubjectID() != "id-root" {
		t.Fatalf("unexpected entry %+v", last)
	}
}

func TestSoftDeletedVisibility(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	f.seed("carol", model.PrivilegeBasic)
	ctx := context.Background()
	if _, err := f.users.SoftDeleteOther(ctx, "id-root", "id-carol"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.users.FindByID(ctx, "id-bob", "id-carol"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("basic should not see deleted users, got %v", err)
	}
	if _, err := f.users.FindByID(ctx, "id-root", "id-carol"); err != nil {
		t.Fatalf("admin should see deleted users, got %v", err)
	}

	basic, _ := f.users.FindMany(ctx, "id-bob", model.UserQuery{})
	admin, _ := f.users.FindMany(ctx, "id-root", model.UserQuery{})
	if len(basic.List) != 2 || len(admin.List) != 3 {
		t.Fatalf("basic saw %d, admin saw %d", len(basic.List), len(admin.List))
	}
}

func TestFindManyPagination(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	for _, n := range []string{"u1", "u2", "u3", "u4"} {
		f.seed(n, model.PrivilegeBasic)
	}
	ctx := context.Background()

	p1, err := f.users.FindMany(ctx, "id-root", model.UserQuery{PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(p1.List) != 2 || p1.List[0].Username != "u4" || p1.NextCursor == nil {
		t.Fatalf("unexpected first page %+v", p1)
	}
	p2, _ := f.users.FindMany(ctx, "id-root", model.UserQuery{PageSize: 2, Cursor: *p1.NextCursor})
	if len(p2.List) != 2 || p2.List[0].Username != "u2" {
		t.Fatalf("unexpected second page %+v", p2)
	}
	p3, _ := f.users.FindMany(ctx, "id-root", model.UserQuery{PageSize: 2, Cursor: *p2.NextCursor})
	if len(p3.List) != 1 || p3.NextCursor != nil {
		t.Fatalf("unexpected last page %+v", p3)
	}

	hits, _ := f.users.FindMany(ctx, "id-root", model.UserQuery{SearchTerm: "U3@EXAMPLE"})
	if len(hits.List) != 1 || hits.List[0].Username != "u3" {
		t.Fatalf("search: %+v", hits.List)
	}
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	ctx := context.Background()

	if _, err := f.users.Restore(ctx, "id-root", "id-bob"); apperror.StatusOf(err) != 400 {
		t.Fatalf("restoring an active user: want 400, got %v", err)
	}
	if _, err := f.users.SoftDeleteOther(ctx, "id-root", "id-bob"); err != nil {
		t.Fatal(err)
	}
	u, err := f.users.Restore(ctx, "id-root", "id-bob")
	if err != nil || !u.Active() {
		t.Fatalf("restore: %v %+v", err, u)
	}
	f.login("bob")
	entries := f.store.AuditEntries()
	if entries[len(entries)-2].Action != model.ActionRestore {
		t.Fatalf("restore should be audited, entries %+v", entries)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	f.seed("bob", model.PrivilegeBasic)
	ctx := context.Background()

	if err := f.users.ChangePassword(ctx, "id-bob", "wrong", "new-pw"); apperror.StatusOf(err) != 400 {
		t.Fatalf("wrong current password: want 400, got %v", err)
	}
	if err := f.users.ChangePassword(ctx, "id-bob", "bob-pw", "new-pw"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := f.sessions.Create(ctx, service.Credentials{Username: "bob", Password: "bob-pw"}); !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := f.sessions.Create(ctx, service.Credentials{Username: "bob", Password: "new-pw"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	f := newFixture(t)
	f.seed("root", model.PrivilegeAdmin)
	f.seed("bob", model.PrivilegeBasic)
	a := f.login("bob")
	f.login("bob")
	ctx := context.Background()

	if _, err := f.sessions.RevokeAllForUser(ctx, "id-bob", "id-root"); !errors.Is(err, &apperror.Error{Kind: apperror.KindForbidden}) {
		t.Fatalf("basic revoking admin: want forbidden, got %v", err)
	}
	n, err := f.sessions.RevokeAllForUser(ctx, "id-root", "id-bob")
	if err != nil || n != 2 {
		t.Fatalf("revoke: n=%d err=%v", n, err)
	}
	if f.validate(a) != nil {
		t.Fatal("revoked session still valid")
	}
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := service.EnsureAdmin(ctx, f.store, f.hasher, "admin", "admin@example.com", "admin-pw", zap.NewNop())
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	created, err = service.EnsureAdmin(ctx, f.store, f.hasher, "admin", "admin@example.com", "admin-pw", zap.NewNop())
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if _, err := f.sessions.Create(ctx, service.Credentials{Username: "admin", Password: "admin-pw"}); err != nil {
		t.Fatalf("bootstrap admin cannot log in: %v", err)
	}
}

func TestAuditListClampsPageSize(t *testing.T) {
	f := newFixture(t)
	root := f.seed("root", model.PrivilegeAdmin)
	ctx := context.Background()
	for i := 0; i < 105; i++ {
		if _, err := f.users.FindByID(ctx, root.ID, root.ID); err != nil {
			t.Fatalf("find %d: %v", i, err)
		}
	}
	page, err := service.NewAuditService(f.store).List(ctx, model.AuditQuery{PageSize: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.List) != 100 || page.NextCursor == nil {
		t.Fatalf("got %d entries, cursor %v; want 100 and a cursor", len(page.List), page.NextCursor)
	}
}
