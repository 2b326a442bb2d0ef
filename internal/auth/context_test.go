package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:    1,
		Role:      "admin",
		SessionID: 3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.Role != "admin" {
		t.Errorf("Role = %q, want %q", got.Role, "admin")
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ac := AuthContext{UserID: 7}
	ctx := WithAuth(context.Background(), ac)
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestIsModerator(t *testing.T) {
	for _, role := range []string{"moderator", "admin"} {
		ctx := WithAuth(context.Background(), AuthContext{Role: role})
		if !IsModerator(ctx) {
			t.Errorf("expected IsModerator = true for %s role", role)
		}
	}
}

func TestIsModeratorCaregiver(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "caregiver"})
	if IsModerator(ctx) {
		t.Error("expected IsModerator = false for caregiver role")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "admin"})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true for admin role")
	}
}

func TestIsAdminModerator(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "moderator"})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for moderator role")
	}
}

func TestIsAdminMissing(t *testing.T) {
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
