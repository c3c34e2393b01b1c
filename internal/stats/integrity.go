package stats

import (
	"fmt"

	"reddata/warehouse/internal/models"
)

// ratioSlop absorbs float error from the area division; a true ratio never
// exceeds 1 because an intersection cannot be larger than its cell.
const ratioSlop = 1e-9

// Finding records a data-integrity violation in the overlap input.
type Finding struct {
	PropertyID string
	GridID     string
	Reason     string
}

func (f Finding) String() string {
	return fmt.Sprintf("property %s / grid %s: %s", f.PropertyID, f.GridID, f.Reason)
}

// ScreenOverlaps separates well-formed overlap records from degenerate
// ones. A grid cell with non-positive area makes the overlap ratio
// undefined and a ratio outside (0, 1] cannot come from a real
// intersection; both point at a broken overlap provider and are excluded
// from the computation and surfaced to the caller instead of being coerced
// to zero or one.
func ScreenOverlaps(overlaps []models.Overlap) ([]models.Overlap, []Finding) {
	clean := make([]models.Overlap, 0, len(overlaps))
	var findings []Finding

	for _, ov := range overlaps {
		switch {
		case ov.GridArea <= 0:
			findings = append(findings, Finding{
				PropertyID: ov.PropertyID,
				GridID:     ov.GridID,
				Reason:     fmt.Sprintf("grid cell area %g is not positive", ov.GridArea),
			})
		case ov.OverlapRatio <= 0 || ov.OverlapRatio > 1+ratioSlop:
			findings = append(findings, Finding{
				PropertyID: ov.PropertyID,
				GridID:     ov.GridID,
				Reason:     fmt.Sprintf("overlap ratio %g outside (0, 1]", ov.OverlapRatio),
			})
		default:
			clean = append(clean, ov)
		}
	}
	return clean, findings
}
