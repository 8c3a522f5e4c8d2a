package geostream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostreamdb/geostream/filter"
	"github.com/geostreamdb/geostream/index/grid"
	"github.com/geostreamdb/geostream/ingest"
	"github.com/geostreamdb/geostream/model"
	"github.com/geostreamdb/geostream/source"
)

func pointFeature(id string, x, y float64) *model.Feature {
	return &model.Feature{ID: id, Geometry: orb.Point{x, y}}
}

func boundAround(x, y float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x - 1, y - 1}, Max: orb.Point{x + 1, y + 1}}
}

// openTestStore opens a store over a channel source.
func openTestStore(t *testing.T, optFns ...Option) (*Store, *source.Chan) {
	t.Helper()

	src := source.NewChan(32)
	st, err := Open(context.Background(), src, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, src
}

// feed pushes a feature and waits for it to become visible.
func feed(t *testing.T, st *Store, src *source.Chan, f *model.Feature) {
	t.Helper()
	src.C <- f
	require.Eventually(t, func() bool {
		got, ok := st.Get(f.ID)
		return ok && got == f
	}, 5*time.Second, time.Millisecond)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = Open(context.Background(), source.NewChan(1), WithTTL(-time.Second))
	var invalidTTL *ErrInvalidTTL
	assert.ErrorAs(t, err, &invalidTTL)
}

func TestOpen_NilLoggerDisablesLogging(t *testing.T) {
	src := source.NewChan(8)
	st, err := Open(context.Background(), src, WithTTL(time.Minute), WithLogger(nil))
	require.NoError(t, err)
	defer st.Close()

	// Ingestion, eviction and close all log; none may touch a nil logger.
	src.C <- pointFeature("a", 0, 0)
	require.Eventually(t, func() bool {
		_, ok := st.Get("a")
		return ok
	}, 5*time.Second, time.Millisecond)

	// Replacement fires the eviction hook.
	moved := pointFeature("a", 10, 10)
	src.C <- moved
	require.Eventually(t, func() bool {
		got, ok := st.Get("a")
		return ok && got == moved
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, st.Close())
}

type failingInitSource struct {
	source.Chan
}

func (failingInitSource) Init(ctx context.Context) error {
	return fmt.Errorf("catalog unreachable")
}

func TestOpen_SourceInitFailureFailsFast(t *testing.T) {
	_, err := Open(context.Background(), &failingInitSource{}, WithTTL(time.Second))
	assert.EqualError(t, err, "catalog unreachable")
}

func TestStore_GetByID(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	feed(t, st, src, pointFeature("a", 0, 0))

	got, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = st.Get("missing")
	assert.False(t, ok)
}

func TestStore_TTLExpiry(t *testing.T) {
	st, src := openTestStore(t, WithTTL(300*time.Millisecond), WithSweepInterval(10*time.Millisecond))

	feed(t, st, src, pointFeature("a", 0, 0))

	time.Sleep(600 * time.Millisecond)

	_, ok := st.Get("a")
	assert.False(t, ok, "expired feature is invisible to ID lookup")

	results, err := st.Find().Within(boundAround(0, 0)).Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results, "expired feature is invisible to spatial queries")
	assert.Equal(t, 0, st.Len())
}

func TestStore_SpatialQuery(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	feed(t, st, src, pointFeature("a", 0, 0))
	feed(t, st, src, pointFeature("b", 10, 10))

	ctx := context.Background()

	// Envelope covering only (0,0).
	results, err := st.Find().Within(boundAround(0, 0)).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)

	// Envelope covering both.
	n, err := st.Find().Within(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{11, 11}}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Unconstrained query scans the world.
	n, err = st.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_IDPathAppliesResidualChecks(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	bus := pointFeature("bus-1", 0, 0)
	bus.Tags = map[string]any{"kind": "bus"}
	feed(t, st, src, bus)

	ctx := context.Background()

	results, err := st.Find().IDs("bus-1", "missing").Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Envelope and predicate still gate the ID path.
	results, err = st.Find().IDs("bus-1").Within(boundAround(50, 50)).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = st.Find().IDs("bus-1").Filter(filter.TagEq("kind", "tram")).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_ReplacementSwapsSpatialRegistration(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	old := pointFeature("a", 0, 0)
	feed(t, st, src, old)

	moved := pointFeature("a", 10, 10)
	feed(t, st, src, moved)

	ctx := context.Background()

	// The old envelope no longer matches.
	results, err := st.Find().Within(boundAround(0, 0)).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	// The new envelope does.
	results, err = st.Find().Within(boundAround(10, 10)).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Same(t, moved, results[0])

	assert.Equal(t, 1, st.Len())
}

func TestStore_ResidualFilter(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	bus := pointFeature("bus-1", 0, 0)
	bus.Tags = map[string]any{"kind": "bus"}
	tram := pointFeature("tram-1", 0.5, 0.5)
	tram.Tags = map[string]any{"kind": "tram"}
	feed(t, st, src, bus)
	feed(t, st, src, tram)

	results, err := st.Find().
		Within(boundAround(0, 0)).
		Filter(filter.TagEq("kind", "bus")).
		Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bus-1", results[0].ID)
}

func TestStore_WithGridIndex(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute), WithSpatialIndex(grid.New(1)))

	feed(t, st, src, pointFeature("a", 0, 0))
	feed(t, st, src, pointFeature("b", 10, 10))

	results, err := st.Find().Within(boundAround(0, 0)).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestStore_WriteAttemptsRejected(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	feed(t, st, src, pointFeature("a", 0, 0))

	ctx := context.Background()
	assert.ErrorIs(t, st.Insert(ctx, pointFeature("x", 1, 1)), ErrReadOnly)
	assert.ErrorIs(t, st.Delete(ctx, "a"), ErrReadOnly)

	// Store state is unchanged.
	assert.Equal(t, 1, st.Len())
	_, ok := st.Get("a")
	assert.True(t, ok)
}

func TestStore_ListenerReceivesIngestedFeatures(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	var mu sync.Mutex
	var seen []string
	st.RegisterListener(ingest.ListenerFunc(func(f *model.Feature) {
		mu.Lock()
		seen = append(seen, f.ID)
		mu.Unlock()
	}), nil)

	feed(t, st, src, pointFeature("a", 0, 0))
	feed(t, st, src, pointFeature("b", 1, 1))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 5*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestStore_ConcurrentQueriesDuringIngestion(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			// Continuous replacement churn on a small ID space.
			src.C <- pointFeature(fmt.Sprintf("f-%d", i%10), float64(i%90), float64(i%45))
		}
	}()

	queryBound := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				results, err := st.Find().Within(queryBound).Execute(context.Background())
				if err != nil {
					return
				}
				for _, f := range results {
					// Anything a query returns was live in the cache at
					// read time.
					assert.NotEmpty(t, f.ID)
					assert.True(t, f.Bound().Intersects(queryBound))
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestStore_CloseIdempotent(t *testing.T) {
	st, src := openTestStore(t, WithTTL(time.Minute))

	feed(t, st, src, pointFeature("a", 0, 0))

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	assert.Equal(t, ingest.StateStopped, st.IngestState())

	_, ok := st.Get("a")
	assert.False(t, ok)

	_, err := st.Find().Execute(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_MetricsCollected(t *testing.T) {
	collector := &BasicCollector{}
	st, src := openTestStore(t, WithTTL(time.Minute), WithCollector(collector))

	feed(t, st, src, pointFeature("a", 0, 0))

	_, err := st.Find().Execute(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return collector.GetStats().IngestCount == 1
	}, 5*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, collector.GetStats().QueryCount, int64(1))
}
