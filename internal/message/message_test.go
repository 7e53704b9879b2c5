package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	original := NewText("hello")
	data, err := original.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"Text"`)

	var decoded Content
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, original, decoded)
}

func TestFileRoundTrip(t *testing.T) {
	original := NewFile("x.bin", []byte{1, 2, 3, 4, 5})
	data, err := original.MarshalJSON()
	require.NoError(t, err)

	var decoded Content
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, original.Kind, decoded.Kind)
	require.Equal(t, original.File.Filename, decoded.File.Filename)
	require.Equal(t, original.File.Data, decoded.File.Data)
}

func TestUnknownKindRejected(t *testing.T) {
	var decoded Content
	err := decoded.UnmarshalJSON([]byte(`{"type":"Bogus","payload":null}`))
	require.Error(t, err)
}
