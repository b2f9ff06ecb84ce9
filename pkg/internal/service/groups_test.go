package service_test

import (
	"context"
	"testing"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
)

// TestGroupGrant 测试授予组的权限随成员关系生效与失效.
func TestGroupGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := f.repository(t, "shared", model.AccessPrivate)

	g, err := f.svc.CreateGroup(ctx, owner, &types.CreateGroupRequest{Name: "lab"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	if _, err := f.svc.CreateGrant(ctx, owner, &types.CreateGrantRequest{
		ResourceUUID: repo.UUID, Grantee: g.UUID, Permissions: model.PermissionRead,
	}); err != nil {
		t.Fatalf("grant group: %v", err)
	}

	_, err = f.svc.GetRepository(ctx, other, repo.UUID)
	wantKind(t, err, apperr.KindForbidden)

	if _, err := f.svc.CreateMembership(ctx, owner, g.UUID, other, ""); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if _, err := f.svc.GetRepository(ctx, other, repo.UUID); err != nil {
		t.Fatalf("member read: %v", err)
	}

	list, err := f.svc.ListRepositories(ctx, other)
	if err != nil || len(list.Included.Repositories) != 1 || list.Included.Repositories[0].UUID != repo.UUID {
		t.Fatalf("repositories = %+v, %v", list, err)
	}

	_, err = f.svc.CreateImport(ctx, other, &types.CreateImportRequest{Name: "batch", RepositoryUUID: repo.UUID})
	wantKind(t, err, apperr.KindForbidden)

	if err := f.svc.DeleteMembership(ctx, owner, g.UUID, other); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	_, err = f.svc.GetRepository(ctx, other, repo.UUID)
	wantKind(t, err, apperr.KindForbidden)
}

// TestGroupMemberships 测试成员管理的权限、重名与最后一个 Owner 的保护.
func TestGroupMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.CreateGroup(ctx, owner, &types.CreateGroupRequest{Name: "lab"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	_, err = f.svc.CreateGroup(ctx, other, &types.CreateGroupRequest{Name: "lab"})
	wantKind(t, err, apperr.KindUnprocessable)

	_, err = f.svc.GetGroup(ctx, other, g.UUID)
	wantKind(t, err, apperr.KindForbidden)

	_, err = f.svc.GetGroup(ctx, owner, "missing")
	wantKind(t, err, apperr.KindNotFound)

	m, err := f.svc.CreateMembership(ctx, owner, g.UUID, other, "")
	if err != nil || m.MembershipType != model.MembershipMember {
		t.Fatalf("membership = %+v, %v", m, err)
	}

	_, err = f.svc.CreateMembership(ctx, owner, g.UUID, other, model.MembershipOwner)
	wantKind(t, err, apperr.KindUnprocessable)

	_, err = f.svc.CreateMembership(ctx, other, g.UUID, "third", "")
	wantKind(t, err, apperr.KindForbidden)

	_, err = f.svc.CreateMembership(ctx, owner, g.UUID, g.UUID, "")
	wantKind(t, err, apperr.KindValidation)

	_, err = f.svc.UpdateMembership(ctx, owner, g.UUID, owner, model.MembershipMember)
	wantKind(t, err, apperr.KindUnprocessable)

	wantKind(t, f.svc.DeleteMembership(ctx, owner, g.UUID, owner), apperr.KindUnprocessable)

	got, err := f.svc.GetGroup(ctx, other, g.UUID)
	if err != nil || len(got.Included.Members) != 2 {
		t.Fatalf("group = %+v, %v", got, err)
	}

	if _, err := f.svc.UpdateMembership(ctx, owner, g.UUID, other, model.MembershipOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}

	if _, err := f.svc.UpdateMembership(ctx, other, g.UUID, owner, model.MembershipMember); err != nil {
		t.Fatalf("demote with another owner: %v", err)
	}

	if err := f.svc.DeleteMembership(ctx, owner, g.UUID, owner); err != nil {
		t.Fatalf("leave group: %v", err)
	}

	groups, err := f.svc.ListGroups(ctx, owner)
	if err != nil || len(groups) != 0 {
		t.Fatalf("groups after leaving = %+v, %v", groups, err)
	}
}
