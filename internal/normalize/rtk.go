package normalize

import "strings"

// RTKStatusToFixType maps a textual RTK status label to the client-side
// 0-4 fix scale. Matching is case-insensitive; unknown labels map to 0.
func RTKStatusToFixType(status string) int {
	switch strings.ToUpper(status) {
	case "RTK FIXED", "FIX":
		return 4
	case "RTK FLOAT", "FLOAT":
		return 3
	case "DGPS":
		return 2
	case "GPS FIX", "GPS":
		return 1
	default:
		return 0
	}
}

// resolveFixType applies rtk_fix_type > fix_type > rtk_status precedence
func resolveFixType(data object) int {
	if f, ok := data.num("rtk_fix_type"); ok {
		return int(f)
	}
	if f, ok := data.num("fix_type"); ok {
		return int(f)
	}
	if s, ok := data["rtk_status"].(string); ok && s != "" {
		return RTKStatusToFixType(s)
	}
	return 0
}
