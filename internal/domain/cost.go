package domain

import "strings"

// Base credit cost per job type. Model variants override the base cost, so
// reservations always charge the variant-specific amount rather than a flat
// per-type constant.
var jobTypeCosts = map[JobType]int64{
	JobTypeImage:   3,
	JobTypeVideo:   5,
	JobTypeMusic:   2,
	JobTypeModel3D: 2,
}

var model3DVariantCosts = map[string]int64{
	"geometry": 2,
	"lowpoly":  3,
	"texture":  3,
	"sculpt":   4,
}

// CostFor returns the credit cost for one job of the given type and variant.
// Unknown variants fall back to the type's base cost; unknown types cost zero
// and are rejected by callers before reaching the ledger.
func CostFor(jobType JobType, variant string) int64 {
	if jobType == JobTypeModel3D {
		key := strings.ToLower(strings.TrimSpace(variant))
		if cost, ok := model3DVariantCosts[key]; ok {
			return cost
		}
	}
	return jobTypeCosts[jobType]
}
