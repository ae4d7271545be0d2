// Package geo extracts coordinates from place locators and assigns them to
// named zones.
package geo

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	atPattern   = regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`)
	dataPattern = regexp.MustCompile(`!3d(-?\d+\.\d+)!4d(-?\d+\.\d+)`)
)

// CoordinatesFromLocator reads latitude and longitude embedded in a maps
// URL, either as "@lat,lon" or as "!3dlat!4dlon". Out-of-range pairs are
// rejected.
func CoordinatesFromLocator(locator string) (lat, lon float64, ok bool) {
	for _, re := range []*regexp.Regexp{atPattern, dataPattern} {
		m := re.FindStringSubmatch(locator)
		if m == nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}
		return lat, lon, true
	}
	return 0, 0, false
}

// Zone is the area a point belongs to.
type Zone struct {
	Name      string
	Riverside bool
}

// Lookup assigns points to zones.
type Lookup interface {
	AssignZone(lat, lon float64) (Zone, bool)
}

// Box is a named bounding box.
type Box struct {
	Name      string  `yaml:"name"`
	Zone      string  `yaml:"zone"`
	Riverside bool    `yaml:"riverside"`
	MinLat    float64 `yaml:"min_lat"`
	MaxLat    float64 `yaml:"max_lat"`
	MinLon    float64 `yaml:"min_lon"`
	MaxLon    float64 `yaml:"max_lon"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Boxes is a Lookup over bounding boxes; the first containing box wins.
type Boxes []Box

// AssignZone implements Lookup.
func (bs Boxes) AssignZone(lat, lon float64) (Zone, bool) {
	for _, b := range bs {
		if b.Contains(lat, lon) {
			name := b.Zone
			if name == "" {
				name = b.Name
			}
			return Zone{Name: name, Riverside: b.Riverside}, true
		}
	}
	return Zone{}, false
}

type boxFile struct {
	Zones []Box `yaml:"zones"`
}

// ParseBoxes reads a YAML document with a top-level "zones" list.
func ParseBoxes(data []byte) (Boxes, error) {
	var f boxFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse zones: %w", err)
	}
	for i, b := range f.Zones {
		if b.Name == "" {
			return nil, fmt.Errorf("zone %d: name is required", i)
		}
		if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
			return nil, fmt.Errorf("zone %q: inverted bounds", b.Name)
		}
	}
	return Boxes(f.Zones), nil
}

// LoadBoxes reads zones from a YAML file.
func LoadBoxes(path string) (Boxes, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	return ParseBoxes(data)
}
