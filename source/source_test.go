package source

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostreamdb/geostream/model"
)

func TestChan_NextDeliversInOrder(t *testing.T) {
	src := NewChan(2)
	require.NoError(t, src.Init(context.Background()))

	a := &model.Feature{ID: "a", Geometry: orb.Point{0, 0}}
	b := &model.Feature{ID: "b", Geometry: orb.Point{1, 1}}
	src.C <- a
	src.C <- b

	got, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestChan_NextHonorsCancellation(t *testing.T) {
	src := NewChan(0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChan_ClosedChannelParksUntilCancel(t *testing.T) {
	src := NewChan(0)
	close(src.C)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlice_ExhaustionParksUntilCancel(t *testing.T) {
	a := &model.Feature{ID: "a", Geometry: orb.Point{0, 0}}
	src := NewSlice(a)
	require.NoError(t, src.Init(context.Background()))

	got, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, got)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
