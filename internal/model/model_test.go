package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringMapValueNil(t *testing.T) {
	var m StringMap
	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestStringMapScan(t *testing.T) {
	var m StringMap
	require.NoError(t, m.Scan([]byte(`{"type":"media","id":"m1"}`)))
	assert.Equal(t, StringMap{"type": "media", "id": "m1"}, m)

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}
