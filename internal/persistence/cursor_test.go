package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/risk/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.Cursor{
		IssuedAt: time.Date(2026, time.March, 14, 9, 30, 0, 123456789, time.UTC),
		ID:       "q-42",
	}

	token := EncodeCursor(cursor)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, cursor.IssuedAt.Equal(decoded.IssuedAt))
	require.Equal(t, "q-42", decoded.ID)
}

func TestCursorEmptyToken(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))

	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)

	decoded, err = DecodeCursor("   ")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%not-base64%%%")
	require.Error(t, err)

	// Valid base64 but missing the separator.
	_, err = DecodeCursor(base64.StdEncoding.EncodeToString([]byte("no-separator")))
	require.Error(t, err)

	// Valid shape but unparseable timestamp.
	_, err = DecodeCursor(base64.StdEncoding.EncodeToString([]byte("yesterday|q-1")))
	require.Error(t, err)
}
