package collab

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var serviceNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:collab_test_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Collaboration{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if clock == nil {
		clock = func() time.Time { return serviceNow }
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestGetOrCreateIsLazyAndIdempotent(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	view, err := service.GetOrCreate(ctx, "chat-1", "owner@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Owner != "owner@x.com" {
		t.Fatalf("expected creator to become owner, got %q", view.Owner)
	}
	if len(view.Collaborators) != 0 || len(view.ActiveUsers) != 0 {
		t.Fatalf("new aggregate should start empty")
	}

	again, err := service.GetOrCreate(ctx, "chat-1", "other@y.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Owner != "owner@x.com" {
		t.Fatalf("a second caller must not take over ownership")
	}
}

func TestInviteRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	if _, err := service.Invite(ctx, "chat-1", "owner@x.com", InviteRequest{Email: "b@y.com", Role: RoleEditor}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Invite(ctx, "chat-1", "owner@x.com", InviteRequest{Email: "b@y.com", Role: RoleViewer})
	if !errors.Is(err, ErrDuplicateCollaborator) {
		t.Fatalf("expected duplicate collaborator error, got %v", err)
	}

	view, err := service.GetOrCreate(ctx, "chat-1", "owner@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Collaborators) != 1 {
		t.Fatalf("rejected duplicate must not change the list, got %d entries", len(view.Collaborators))
	}
}

func TestInviteDefaultsRoleAndDisplayName(t *testing.T) {
	service := newTestService(t, nil)

	result, err := service.Invite(context.Background(), "chat-1", "owner@x.com", InviteRequest{Email: "ben@y.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Collaborator.Role != RoleViewer {
		t.Fatalf("expected viewer default, got %q", result.Collaborator.Role)
	}
	if result.Collaborator.Name != "Ben" {
		t.Fatalf("expected display name from email local part, got %q", result.Collaborator.Name)
	}
	if result.Collaborator.Status != InviteStatusPending {
		t.Fatalf("invitations start pending, got %q", result.Collaborator.Status)
	}
	if result.ShareToken == "" {
		t.Fatalf("an invite must mint a share token")
	}
}

func TestOwnerGateLeavesAggregateUnchanged(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	invited, err := service.Invite(ctx, "chat-1", "owner@x.com", InviteRequest{Email: "b@y.com", Role: RoleEditor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.UpdateRole(ctx, "chat-1", "b@y.com", invited.Collaborator.ID, RoleOwner); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner role change, got %v", err)
	}
	if err := service.RemoveCollaborator(ctx, "chat-1", "b@y.com", invited.Collaborator.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner removal, got %v", err)
	}
	if err := service.DisableShareLink(ctx, "chat-1", "b@y.com"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner share-link change, got %v", err)
	}

	view, err := service.GetOrCreate(ctx, "chat-1", "owner@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Collaborators) != 1 || view.Collaborators[0].Role != RoleEditor {
		t.Fatalf("denied mutations must leave the aggregate unchanged, got %#v", view.Collaborators)
	}
	if !view.ShareLink.Enabled {
		t.Fatalf("share link must stay enabled after the denied disable")
	}
}

func TestUpdateRoleAndRemoveCollaborator(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	invited, err := service.Invite(ctx, "chat-1", "owner@x.com", InviteRequest{Email: "b@y.com", Role: RoleViewer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := service.UpdateRole(ctx, "chat-1", "owner@x.com", invited.Collaborator.ID, RoleEditor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Role != RoleEditor {
		t.Fatalf("expected editor role, got %q", updated.Role)
	}

	if err := service.RemoveCollaborator(ctx, "chat-1", "owner@x.com", invited.Collaborator.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := service.GetOrCreate(ctx, "chat-1", "owner@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Collaborators) != 0 {
		t.Fatalf("expected empty collaborator list, got %d", len(view.Collaborators))
	}

	if _, err := service.UpdateRole(ctx, "chat-1", "owner@x.com", invited.Collaborator.ID, RoleViewer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for removed collaborator, got %v", err)
	}
}

func TestAcceptInviteFlipsStatus(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	if _, err := service.Invite(ctx, "chat-1", "owner@x.com", InviteRequest{Email: "b@y.com", Role: RoleEditor}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	accepted, err := service.AcceptInvite(ctx, "chat-1", "b@y.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != InviteStatusAccepted {
		t.Fatalf("expected accepted status, got %q", accepted.Status)
	}

	if _, err := service.AcceptInvite(ctx, "chat-1", "stranger@z.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for a never-invited email, got %v", err)
	}
}

func TestShareTokenLifecycle(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	link, err := service.GenerateShareLink(ctx, "chat-1", "owner@x.com", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Token == "" || !link.Enabled {
		t.Fatalf("expected an enabled token, got %#v", link)
	}
	if link.ExpiresAt != nil {
		t.Fatalf("a zero ttl must not set an expiry, got %v", link.ExpiresAt)
	}

	shared, err := service.ResolveShareToken(ctx, link.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shared.ChatID != "chat-1" || shared.Role != RoleViewer {
		t.Fatalf("share tokens resolve to viewer access, got %#v", shared)
	}

	if err := service.DisableShareLink(ctx, "chat-1", "owner@x.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.ResolveShareToken(ctx, link.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("disabled tokens must be indistinguishable from unknown ones, got %v", err)
	}

	if _, err := service.ResolveShareToken(ctx, "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown token, got %v", err)
	}
}

func TestResolveShareTokenExpiry(t *testing.T) {
	current := serviceNow
	service := newTestService(t, func() time.Time { return current })
	ctx := context.Background()

	link, err := service.GenerateShareLink(ctx, "chat-1", "owner@x.com", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The expiry is anchored to the injected clock, not the wall clock.
	if link.ExpiresAt == nil || !link.ExpiresAt.Equal(serviceNow.Add(time.Hour)) {
		t.Fatalf("expected expiry at clock+1h, got %v", link.ExpiresAt)
	}

	if _, err := service.ResolveShareToken(ctx, link.Token); err != nil {
		t.Fatalf("token should resolve before expiry: %v", err)
	}

	current = serviceNow.Add(2 * time.Hour)
	if _, err := service.ResolveShareToken(ctx, link.Token); !errors.Is(err, ErrShareLinkExpired) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestUpsertPresenceConvergesAcrossPaths(t *testing.T) {
	// The websocket gateway and the HTTP handler both call UpsertPresence, so
	// interleaving the two write paths must land on a single roster entry.
	service := newTestService(t, nil)
	ctx := context.Background()

	if _, err := service.UpsertPresence(ctx, "chat-1", PresenceEntry{Email: "a@x.com", Name: "Ada"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	roster, err := service.UpsertPresence(ctx, "chat-1", PresenceEntry{
		Email:  "a@x.com",
		Name:   "Ada",
		Cursor: Cursor{Position: 9, Color: "hsl(10, 70%, 60%)"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(roster) != 1 {
		t.Fatalf("expected one roster entry per identity, got %d", len(roster))
	}
	if roster[0].Cursor.Position != 9 {
		t.Fatalf("expected the later write to win, got position %d", roster[0].Cursor.Position)
	}

	read, err := service.ActiveUsers(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(read) != 1 || read[0].Email != "a@x.com" {
		t.Fatalf("read path must agree with the write paths, got %#v", read)
	}
}

func TestActiveUsersUnknownChatIsEmptyNotError(t *testing.T) {
	service := newTestService(t, nil)

	roster, err := service.ActiveUsers(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("unknown chats must not error: %v", err)
	}
	if len(roster) != 0 {
		t.Fatalf("expected empty roster, got %#v", roster)
	}
}

func TestActiveUsersEvictsAndPersistsPrunedRoster(t *testing.T) {
	current := serviceNow
	service := newTestService(t, func() time.Time { return current })
	ctx := context.Background()

	if _, err := service.UpsertPresence(ctx, "chat-1", PresenceEntry{Email: "a@x.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = serviceNow.Add(PresenceTTL + time.Second)
	roster, err := service.ActiveUsers(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster) != 0 {
		t.Fatalf("expected the stale entry to be evicted, got %#v", roster)
	}

	// The prune is written back: a reader at the original time still sees nothing.
	current = serviceNow
	again, err := service.ActiveUsers(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("pruned roster must be persisted, got %#v", again)
	}
}

func TestRemovePresenceUnknownChatIsNoOp(t *testing.T) {
	service := newTestService(t, nil)
	if err := service.RemovePresence(context.Background(), "never-seen", "a@x.com"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
}

func TestRemovePresenceDropsOnlyThatIdentity(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	if _, err := service.UpsertPresence(ctx, "chat-1", PresenceEntry{Email: "a@x.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.UpsertPresence(ctx, "chat-1", PresenceEntry{Email: "b@y.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.RemovePresence(ctx, "chat-1", "a@x.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	roster, err := service.ActiveUsers(ctx, "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster) != 1 || roster[0].Email != "b@y.com" {
		t.Fatalf("expected only b@y.com to remain, got %#v", roster)
	}
}
