package source

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/geostreamdb/geostream/model"
)

// decodeFeature converts one GeoJSON feature document into a model.Feature.
// The feature ID is taken from the GeoJSON "id" member, falling back to an
// "id" property; a feature without either is rejected.
func decodeFeature(data []byte) (*model.Feature, error) {
	gf, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson feature: %w", err)
	}
	return fromGeoJSON(gf)
}

// decodeCollection converts a GeoJSON FeatureCollection document.
func decodeCollection(data []byte) ([]*model.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson collection: %w", err)
	}
	features := make([]*model.Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		f, err := fromGeoJSON(gf)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, nil
}

func fromGeoJSON(gf *geojson.Feature) (*model.Feature, error) {
	id, ok := featureID(gf)
	if !ok {
		return nil, fmt.Errorf("geojson feature has no id")
	}
	if gf.Geometry == nil {
		return nil, fmt.Errorf("geojson feature %q has no geometry", id)
	}
	return &model.Feature{
		ID:       id,
		Geometry: gf.Geometry,
		Tags:     map[string]any(gf.Properties),
	}, nil
}

func featureID(gf *geojson.Feature) (string, bool) {
	candidates := []any{gf.ID}
	if v, ok := gf.Properties["id"]; ok {
		candidates = append(candidates, v)
	}
	for _, v := range candidates {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id, true
			}
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64), true
		case int:
			return strconv.Itoa(id), true
		case int64:
			return strconv.FormatInt(id, 10), true
		}
	}
	return "", false
}
