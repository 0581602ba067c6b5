package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

func TestKeyring_Authenticate(t *testing.T) {
	kr := NewKeyring([]string{"user-key-1", "user-key-2"}, "admin-key")

	tests := []struct {
		name     string
		key      string
		wantRole Role
		wantKind string
	}{
		{name: "first user key", key: "user-key-1", wantRole: RoleUser},
		{name: "second user key", key: "user-key-2", wantRole: RoleUser},
		{name: "admin key", key: "admin-key", wantRole: RoleAdmin},
		{name: "unknown key", key: "nope", wantKind: gwerrors.KindAuthInvalid},
		{name: "empty key", key: "", wantKind: gwerrors.KindAuthMissing},
		{name: "prefix of a valid key", key: "user-key", wantKind: gwerrors.KindAuthInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := kr.Authenticate(tt.key)
			if tt.wantKind != "" {
				assert.True(t, gwerrors.IsKind(err, tt.wantKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, id.Role)
			assert.Equal(t, tt.key, id.Key)
		})
	}
}

func TestKeyring_AdminWinsWhenKeyIsInBothSets(t *testing.T) {
	kr := NewKeyring([]string{"shared-key"}, "shared-key")

	id, err := kr.Authenticate("shared-key")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestKeyring_Empty(t *testing.T) {
	assert.True(t, NewKeyring(nil, "").Empty())
	assert.True(t, NewKeyring([]string{""}, "").Empty())
	assert.False(t, NewKeyring([]string{"k"}, "").Empty())
	assert.False(t, NewKeyring(nil, "a").Empty())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "sk-12345...", Redact("sk-12345-very-secret"))
	assert.Equal(t, "short", Redact("short"))
	assert.Equal(t, "", Redact(""))
}
