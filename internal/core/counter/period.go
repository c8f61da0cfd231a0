package counter

import (
	"strings"
	"time"
)

// ResolvePeriod maps a reset policy and reference date to the period key
// shared by every call within the same reset window.
func ResolvePeriod(policy ResetPolicy, date time.Time) int {
	switch policy {
	case ResetNever:
		return 0
	case ResetAnnual:
		return date.Year() % 100
	case ResetMonthly:
		return 100*(date.Year()%100) + int(date.Month())
	case ResetDecade:
		return date.Year() % 10
	default:
		// FISCAL_YEAR and PERIOD have no calendar source here.
		return 0
	}
}

// ResolveScope derives the scope key of a counter.
//
// COMPANY-level definitions share the folder scope: company-derived scoping
// is not implemented.
func ResolveScope(level DefinitionLevel, site string) string {
	switch level {
	case LevelSite:
		return strings.TrimSpace(site)
	case LevelFolder, LevelCompany:
		return ""
	default:
		return ""
	}
}
