package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedTokens(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		tokens := NewFeedTokens("s3cret", time.Minute)

		token, expiresAt, err := tokens.Issue("u1")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

		userID, err := tokens.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		token, _, err := NewFeedTokens("s3cret", time.Minute).Issue("u1")
		require.NoError(t, err)

		_, err = NewFeedTokens("other", time.Minute).Verify(token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		tokens := NewFeedTokens("s3cret", time.Minute)
		tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := tokens.Issue("u1")
		require.NoError(t, err)
		tokens.now = time.Now

		_, err = tokens.Verify(token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Tampered", func(t *testing.T) {
		tokens := NewFeedTokens("s3cret", time.Minute)
		token, _, err := tokens.Issue("u1")
		require.NoError(t, err)
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)

		_, err = tokens.Verify(parts[0] + "." + parts[1] + "." + "AAAA")

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Missing User", func(t *testing.T) {
		_, _, err := NewFeedTokens("s3cret", time.Minute).Issue("")

		assert.Error(t, err)
	})
}
