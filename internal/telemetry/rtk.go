package telemetry

import "fmt"

var fixLabels = map[int]string{
	0: "No Fix",
	1: "No Fix",
	2: "2D Fix",
	3: "3D Fix",
	4: "DGPS",
	5: "RTK Float",
	6: "RTK Fixed",
}

// FixLabel returns the display label of a GPS fix type on the 0-6 scale.
func FixLabel(fixType int) string {
	if label, ok := fixLabels[fixType]; ok {
		return label
	}
	return fmt.Sprintf("Fix %d", fixType)
}

// BaseLinkedForDisplay reports whether a base station link should be shown,
// treating any fix at or above minFixType as implicitly linked.
func BaseLinkedForDisplay(r RTK, minFixType int) bool {
	return r.BaseLinked || r.FixType >= minFixType
}
