package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	live := &RefreshToken{ExpiresAt: now.Add(time.Hour)}

	assert.True(t, live.Usable(now))
	assert.False(t, live.Usable(now.Add(time.Hour)))
	assert.False(t, (&RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}).Usable(now))

	var missing *RefreshToken
	assert.False(t, missing.Usable(now))
}

func TestRefreshTokenHidesSecret(t *testing.T) {
	payload, err := json.Marshal(RefreshToken{ID: "rt-1", Token: "opaque-secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "opaque-secret")
}
