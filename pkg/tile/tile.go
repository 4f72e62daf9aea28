// Package tile names SRTM1 one-degree tiles and enumerates them over a
// latitude/longitude rectangle.
package tile

import (
	"fmt"

	"github.com/glorpus-work/srtm1dl/pkg/errors"
)

// DefaultBaseURL is the archive prefix SRTM1 tile keys are appended to.
const DefaultBaseURL = "https://earthexplorer.usgs.gov/download/8360/"

const urlSuffix = "/DTED/EE"

// Coordinate limits.
const (
	MinLatitude  = -90
	MaxLatitude  = 90
	MinLongitude = -180
	MaxLongitude = 180
)

// Tile identifies the one-degree cell whose south-west corner is (Lat, Lon).
type Tile struct {
	Lat int
	Lon int
}

// Name returns the archive key, e.g. SRTM1N11W009V3 for (11, -9).
func (t Tile) Name() string {
	ns, lat := 'N', t.Lat
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	ew, lon := 'E', t.Lon
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("SRTM1%c%02d%c%03dV3", ns, lat, ew, lon)
}

// URL returns the download URL for the tile under base.
func (t Tile) URL(base string) string {
	return base + t.Name() + urlSuffix
}

func (t Tile) String() string {
	return fmt.Sprintf("(%d,%d)", t.Lat, t.Lon)
}

// Rect is an inclusive range of tile origins.
type Rect struct {
	MinLat int
	MaxLat int
	MinLon int
	MaxLon int
}

// Normalize returns r with inverted bounds swapped.
func (r Rect) Normalize() Rect {
	if r.MinLat > r.MaxLat {
		r.MinLat, r.MaxLat = r.MaxLat, r.MinLat
	}
	if r.MinLon > r.MaxLon {
		r.MinLon, r.MaxLon = r.MaxLon, r.MinLon
	}
	return r
}

// Validate checks that every bound is a valid coordinate.
func (r Rect) Validate() error {
	checks := []struct {
		name   string
		value  int
		lo, hi int
	}{
		{"min_latitude", r.MinLat, MinLatitude, MaxLatitude},
		{"max_latitude", r.MaxLat, MinLatitude, MaxLatitude},
		{"min_longitude", r.MinLon, MinLongitude, MaxLongitude},
		{"max_longitude", r.MaxLon, MinLongitude, MaxLongitude},
	}
	for _, c := range checks {
		if c.value < c.lo || c.value > c.hi {
			return errors.FieldOutOfRange(c.name, c.value, c.lo, c.hi)
		}
	}
	return nil
}

// Count returns the number of tiles in the normalized rectangle.
func (r Rect) Count() int {
	n := r.Normalize()
	return (n.MaxLat - n.MinLat + 1) * (n.MaxLon - n.MinLon + 1)
}

// Tiles lists every tile in the normalized rectangle, latitude-major.
func (r Rect) Tiles() []Tile {
	n := r.Normalize()
	out := make([]Tile, 0, r.Count())
	for lat := n.MinLat; lat <= n.MaxLat; lat++ {
		for lon := n.MinLon; lon <= n.MaxLon; lon++ {
			out = append(out, Tile{Lat: lat, Lon: lon})
		}
	}
	return out
}
