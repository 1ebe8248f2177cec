// Package geometry supplies well-known block-device sizes for mkfs callers
// (the CLI and tests) so they don't have to hand-type total sector counts,
// adapted from the teacher's disks.DiskGeometry lookup.
package geometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Geometry describes one predefined block-device size a caller can hand to
// mkfs.Plan instead of typing out raw sector counts.
type Geometry struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	BytesPerSector    uint   `csv:"bytes_per_sector"`
	TotalSectors      uint   `csv:"total_sectors"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	FormFactor        string `csv:"form_factor"`
}

// TotalSizeBytes is the device's capacity, the minimum size of a backing
// image file for this geometry.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.BytesPerSector) * int64(g.TotalSectors)
}

//go:embed geometries.csv
var rawCSV string

var known = map[string]Geometry{}

func init() {
	reader := strings.NewReader(rawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := known[row.Slug]; exists {
			return fmt.Errorf("duplicate geometry slug %q", row.Slug)
		}
		known[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// Lookup returns the predefined geometry registered under slug.
func Lookup(slug string) (Geometry, error) {
	g, ok := known[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("no predefined geometry with slug %q", slug)
	}
	return g, nil
}

// Slugs returns every registered geometry's slug, in no particular order.
func Slugs() []string {
	out := make([]string, 0, len(known))
	for slug := range known {
		out = append(out, slug)
	}
	return out
}
