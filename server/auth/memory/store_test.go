package memory

import (
	"context"
	"testing"

	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/storage"
)

func TestStore_Authenticate(t *testing.T) {
	s := New()
	if err := s.AddUser(User{Username: "sync", Password: "secret", Account: "alice@example.com", SyncAdapter: true}); err != nil {
		t.Fatalf("unexpected error adding user: %v", err)
	}
	if err := s.AddUser(User{Username: "sync", Password: "other"}); err == nil {
		t.Error("expected error adding duplicate user")
	}

	p, err := s.Authenticate(context.Background(), auth.Credentials{Username: "sync", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error authenticating: %v", err)
	}
	if p.Account != "alice@example.com" || !p.SyncAdapter {
		t.Errorf("got principal %+v", p)
	}

	_, err = s.Authenticate(context.Background(), auth.Credentials{Username: "sync", Password: "wrong"})
	if e, ok := err.(*auth.Error); !ok || e.Type != auth.ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	_, err = s.Authenticate(context.Background(), auth.Credentials{Username: "nobody"})
	if err == nil {
		t.Error("expected error for unknown user")
	}
}

func TestStore_ValidateAccess(t *testing.T) {
	s := New()
	_ = s.AddUser(User{Username: "alice", Password: "pw", SyncAdapter: true})
	own := &storage.Calendar{ID: 1, AccountName: "alice"}
	foreign := &storage.Calendar{ID: 2, AccountName: "bob"}

	alice, err := s.Authenticate(context.Background(), auth.Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected error authenticating: %v", err)
	}

	tests := []struct {
		name      string
		principal *auth.Principal
		cal       *storage.Calendar
		wantType  auth.ErrorType
	}{
		{"own calendar", alice, own, ""},
		{"foreign calendar", alice, foreign, auth.ErrForbidden},
		{"unknown principal", &auth.Principal{ID: "mallory"}, own, auth.ErrUnauthorized},
		{"app caller", nil, foreign, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateAccess(context.Background(), tt.principal, tt.cal)
			if tt.wantType == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if e, ok := err.(*auth.Error); !ok || e.Type != tt.wantType {
				t.Errorf("expected %s, got %v", tt.wantType, err)
			}
		})
	}
}
