package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoquery/pkg/store/index"
)

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, "token", []byte(`{"symbol":"GRT"}`)))

	v, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"GRT"}`, string(v))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_NotFound(t *testing.T) {
	_, err := New().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := New()

	value := []byte(`1`)
	require.NoError(t, s.Put(ctx, "k", value))
	value[0] = '2'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	got[0] = '3'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", string(again))
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Put(ctx, "k", nil))
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
