package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextOffset(t *testing.T) {
	n := nextOffset(0, 10, 25)
	require.NotNil(t, n)
	require.Equal(t, 10, *n)

	n = nextOffset(10, 10, 25)
	require.NotNil(t, n)
	require.Equal(t, 20, *n)

	require.Nil(t, nextOffset(20, 10, 25))
	require.Nil(t, nextOffset(0, 10, 10))
	require.Nil(t, nextOffset(0, 10, 0))
}

func TestPageNormalize(t *testing.T) {
	p := page{}
	p.normalize()
	require.Equal(t, 50, p.Limit)
	require.Equal(t, 0, p.Offset)

	p = page{Limit: 1000, Offset: -5}
	p.normalize()
	require.Equal(t, 200, p.Limit)
	require.Equal(t, 0, p.Offset)

	p = page{Limit: -1, Offset: 100_000}
	p.normalize()
	require.Equal(t, 1, p.Limit)
	require.Equal(t, 50_000, p.Offset)
}

func TestBearerToken(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, err)
	require.Empty(t, bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	require.Equal(t, "abc123", bearerToken(r))

	r.Header.Set("Authorization", "bearer abc123")
	require.Equal(t, "abc123", bearerToken(r))

	r.Header.Set("Authorization", "Basic abc123")
	require.Empty(t, bearerToken(r))

	r.Header.Set("Authorization", "Bearer")
	require.Empty(t, bearerToken(r))
}
