package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/cyp0633/librecur/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetPrincipalFromContext(ctx))
	assert.False(t, IsSyncAdapter(ctx))

	p := &Principal{ID: "sync", Account: "alice@example.com", SyncAdapter: true}
	ctx = WithPrincipal(ctx, p)
	assert.Same(t, p, GetPrincipalFromContext(ctx))
	assert.True(t, IsSyncAdapter(ctx))

	app := WithPrincipal(context.Background(), &Principal{ID: "app"})
	assert.False(t, IsSyncAdapter(app))
}

func TestCheckAccountAccess(t *testing.T) {
	cal := &storage.Calendar{ID: 1, AccountName: "alice@example.com"}

	tests := []struct {
		name      string
		principal *Principal
		wantErr   bool
	}{
		{"app caller", nil, false},
		{"app principal", &Principal{ID: "ui", Account: "bob@example.com"}, false},
		{"own sync adapter", &Principal{ID: "s", Account: "alice@example.com", SyncAdapter: true}, false},
		{"foreign sync adapter", &Principal{ID: "s", Account: "bob@example.com", SyncAdapter: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAccountAccess(tt.principal, cal)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var authErr *Error
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, ErrForbidden, authErr.Type)
		})
	}
}
