package geostream_test

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/geostreamdb/geostream"
	"github.com/geostreamdb/geostream/ingest"
	"github.com/geostreamdb/geostream/model"
	"github.com/geostreamdb/geostream/source"
)

func Example() {
	ctx := context.Background()

	src := source.NewChan(8)
	store, err := geostream.Open(ctx, src, geostream.WithTTL(time.Minute))
	if err != nil {
		panic(err)
	}
	defer store.Close()

	ingested := make(chan string, 8)
	store.RegisterListener(ingest.ListenerFunc(func(f *model.Feature) {
		ingested <- f.ID
	}), nil)

	src.C <- &model.Feature{
		ID:       "bus-42",
		Geometry: orb.Point{13.4, 52.5},
		Tags:     map[string]any{"kind": "bus"},
	}
	fmt.Println("ingested:", <-ingested)

	near := orb.Bound{Min: orb.Point{13, 52}, Max: orb.Point{14, 53}}
	results, err := store.Find().Within(near).Execute(ctx)
	if err != nil {
		panic(err)
	}
	for _, f := range results {
		fmt.Println("found:", f)
	}

	// Output:
	// ingested: bus-42
	// found: Feature(bus-42)
}
