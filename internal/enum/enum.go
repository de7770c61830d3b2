package enum

// ── Order types (CHECK constrained in DB) ──

const (
	OrderTypeDineIn  = "DINE_IN"
	OrderTypeTakeout = "TAKEOUT"
)

// DefaultCategory is the display bucket for menu items whose category is
// null or empty.
const DefaultCategory = "Other"

// DisplayCategory normalizes a nullable menu category for grouping. The
// null/empty → "Other" mapping is part of the data model, not a rendering
// detail.
func DisplayCategory(category string) string {
	if category == "" {
		return DefaultCategory
	}
	return category
}
