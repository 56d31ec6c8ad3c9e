package index

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/docstore/engine/pkg/mvcc"
	"github.com/docstore/engine/pkg/shape"
)

const earthRadiusMeters = 6371000.0

// GeoIndex supports two construction modes per spec.md §4.3.5: one
// attribute path holding a two-element [lat,lon] or [lon,lat] array
// (geoJSON flips the pair order), or two separate latitude/longitude
// paths. Internals are a direct haversine scan over every indexed
// point rather than a grid decomposition — an explicit simplification
// spec.md leaves as an unspecified implementation detail.
type GeoIndex struct {
	base

	twoPaths bool
	geoJSON  bool

	entries []*geoEntry
}

type geoEntry struct {
	lat, lon float64
	mp       *mvcc.MasterPointer
}

// NewGeoIndexCombined builds a GeoIndex over a single [lat,lon] (or
// [lon,lat] if geoJSON) array path.
func NewGeoIndexCombined(idx uint64, path shape.AttributePath, geoJSON bool, shapes shape.Service) *GeoIndex {
	return &GeoIndex{
		base: base{
			id:       idx,
			typeName: "geo1",
			paths:    []shape.AttributePath{path},
			pathStrs: []string{path.String()},
			unique:   false,
			sparse:   true,
			shapes:   shapes,
		},
		twoPaths: false,
		geoJSON:  geoJSON,
	}
}

// NewGeoIndexSeparate builds a GeoIndex over distinct latitude and
// longitude paths.
func NewGeoIndexSeparate(idx uint64, latPath, lonPath shape.AttributePath, shapes shape.Service) *GeoIndex {
	return &GeoIndex{
		base: base{
			id:       idx,
			typeName: "geo2",
			paths:    []shape.AttributePath{latPath, lonPath},
			pathStrs: []string{latPath.String(), lonPath.String()},
			unique:   false,
			sparse:   true,
			shapes:   shapes,
		},
		twoPaths: true,
	}
}

func (g *GeoIndex) extractPoint(body []byte) (lat, lon float64, ok bool) {
	if g.twoPaths {
		latVal, okLat := g.shapes.Extract(body, g.paths[0])
		lonVal, okLon := g.shapes.Extract(body, g.paths[1])
		if !okLat || !okLon || latVal.IsNull() || lonVal.IsNull() {
			return 0, 0, false
		}
		var la, lo float64
		if json.Unmarshal(latVal.Raw, &la) != nil || json.Unmarshal(lonVal.Raw, &lo) != nil {
			return 0, 0, false
		}
		return la, lo, true
	}

	v, ok := g.shapes.Extract(body, g.paths[0])
	if !ok || v.IsNull() || v.Kind != shape.KindArray {
		return 0, 0, false
	}
	var pair []float64
	if json.Unmarshal(v.Raw, &pair) != nil || len(pair) != 2 {
		return 0, 0, false
	}
	if g.geoJSON {
		return pair[1], pair[0], true
	}
	return pair[0], pair[1], true
}

// Insert extracts the coordinate and appends an entry. Missing
// coordinates exclude the record, matching the sparse behavior geo
// indexes always exhibit.
func (g *GeoIndex) Insert(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	lat, lon, ok := g.extractPoint(mp.Body)
	if !ok {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, &geoEntry{lat: lat, lon: lon, mp: mp})
	return nil
}

func (g *GeoIndex) Remove(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error { return nil }

func (g *GeoIndex) Forget(tx *mvcc.Transaction, mp *mvcc.MasterPointer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e.mp == mp {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (g *GeoIndex) PreCommit(tx *mvcc.Transaction) error { return nil }

// GeoResult pairs a master pointer with its haversine distance, in
// meters, from the query point.
type GeoResult struct {
	MasterPointer *mvcc.MasterPointer
	DistanceMeters float64
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Near returns the limit closest entries to (lat, lon), ascending by
// distance.
func (g *GeoIndex) Near(lat, lon float64, limit int) []GeoResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	results := make([]GeoResult, 0, len(g.entries))
	for _, e := range g.entries {
		results = append(results, GeoResult{MasterPointer: e.mp, DistanceMeters: haversine(lat, lon, e.lat, e.lon)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DistanceMeters < results[j].DistanceMeters })
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// Within returns every entry inside radiusMeters of (lat, lon),
// ascending by distance.
func (g *GeoIndex) Within(lat, lon, radiusMeters float64) []GeoResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []GeoResult
	for _, e := range g.entries {
		d := haversine(lat, lon, e.lat, e.lon)
		if d <= radiusMeters {
			results = append(results, GeoResult{MasterPointer: e.mp, DistanceMeters: d})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DistanceMeters < results[j].DistanceMeters })
	return results
}

func (g *GeoIndex) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":      g.id,
		"type":    g.typeName,
		"fields":  g.pathStrs,
		"unique":  false,
		"sparse":  true,
		"geoJson": g.geoJSON,
	}
}

func (g *GeoIndex) Memory() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries) * 40
}
