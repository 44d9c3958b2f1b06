// Package disks provides named FAT16 media geometry presets, loaded from an
// embedded CSV table the same way the teacher repo's disk-geometry catalog
// does, and a blank-image formatter built on top of them.
package disks

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Geometry describes the FAT16-relevant parameters of a storage medium: how
// big its sectors and clusters are, how many FAT copies and root directory
// entries it carries, and its total sector count.
type Geometry struct {
	Name  string `csv:"name"`
	Slug  string `csv:"slug"`
	Notes string `csv:"notes"`

	SectorSize        uint `csv:"sector_size"`
	SectorsPerCluster uint `csv:"sectors_per_cluster"`
	ReservedSectors   uint `csv:"reserved_sectors"`
	NumFATs           uint `csv:"num_fats"`
	SectorsPerFAT     uint `csv:"sectors_per_fat"`
	RootEntryCount    uint `csv:"root_entry_count"`
	TotalSectors      uint `csv:"total_sectors"`

	// HasMBR tells the caller whether this preset describes a partitioned
	// image (boot sector behind an MBR) or a bare floppy-style image with
	// the boot sector at byte 0.
	HasMBR bool `csv:"has_mbr"`
}

// TotalSizeBytes gives the size of an image built from this geometry, in
// bytes. This is the minimum size the backing MemoryDevice or file needs.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.SectorSize) * int64(g.TotalSectors)
}

//go:embed geometries.csv
var geometriesRawCSV string

var geometries map[string]Geometry

// Lookup returns the named preset geometry. Presets are keyed by slug,
// e.g. "fat16-hdd-32mb".
func Lookup(slug string) (Geometry, error) {
	g, ok := geometries[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
	}
	return g, nil
}

// Names lists every known preset slug.
func Names() []string {
	names := make([]string, 0, len(geometries))
	for slug := range geometries {
		names = append(names, slug)
	}
	return names
}

func init() {
	geometries = make(map[string]Geometry)

	reader := strings.NewReader(geometriesRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := geometries[row.Slug]; exists {
			return fmt.Errorf("duplicate definition for disk geometry %q", row.Slug)
		}
		geometries[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}
