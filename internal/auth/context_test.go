package auth

import (
	"context"
	"testing"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	id := Identity{UserID: "u1", Email: "a@b.com", Roles: []string{"trainer"}}
	ctx := ContextWithIdentity(context.Background(), id)
	got, ok := IdentityFromContext(ctx)
	if !ok {
		t.Fatal("identity not found in context")
	}
	if got.UserID != "u1" || got.Email != "a@b.com" {
		t.Fatalf("got %+v", got)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("identity found in empty context")
	}
}

func TestHasAnyRole(t *testing.T) {
	id := Identity{Roles: []string{"Trainer", "client"}}
	if !id.HasAnyRole("trainer") {
		t.Fatal("role match should be case-insensitive")
	}
	if !id.HasAnyRole("admin", "client") {
		t.Fatal("any intersection should match")
	}
	if id.HasAnyRole("admin") {
		t.Fatal("no intersection should not match")
	}
	if id.HasAnyRole() {
		t.Fatal("empty requirement should not match")
	}
}
