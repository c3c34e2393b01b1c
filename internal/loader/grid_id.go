package loader

import "fmt"

// CellSizeMeters maps a grid size label to its edge length.
var CellSizeMeters = map[string]int{
	"100m": 100,
	"1km":  1000,
	"10km": 10000,
}

// gridIDSizeLabel is the size token inside a grid id: 1km cells are written
// as 1000m, 10km cells as 10000m.
func gridIDSizeLabel(size string) string {
	switch size {
	case "1km":
		return "1000m"
	case "10km":
		return "10000m"
	default:
		return size
	}
}

// GridID builds the INSPIRE grid identifier from cell center coordinates,
// e.g. CRS3035RES100mN2691700E4341100.
func GridID(size string, yCenter, xCenter int) string {
	return fmt.Sprintf("CRS3035RES%sN%dE%d", gridIDSizeLabel(size), yCenter, xCenter)
}
