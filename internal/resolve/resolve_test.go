package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLiteralIPSkipsLookup(t *testing.T) {
	r := NewResolver("")
	addr, err := r.Resolve(context.Background(), "127.0.0.1:7070")
	require.NoError(t, err)
	require.Equal(t, 7070, addr.Port)
	require.True(t, addr.IP.IsLoopback())
}

func TestResolveRejectsMissingPort(t *testing.T) {
	r := NewResolver("")
	_, err := r.Resolve(context.Background(), "127.0.0.1")
	require.ErrorIs(t, err, ErrResolveFail)
}
