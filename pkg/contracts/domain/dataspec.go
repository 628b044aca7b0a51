package domain

import "fmt"

// SourceCategory identifies which partition of the data lake a field is
// served from.
type SourceCategory string

const (
	SourceTicks        SourceCategory = "ticks"
	SourceFundamentals SourceCategory = "fundamentals"
	SourceMetrics      SourceCategory = "metrics"
	SourceUniverse     SourceCategory = "universe"
)

// Valid reports whether the category is one of the known sources.
func (c SourceCategory) Valid() bool {
	switch c {
	case SourceTicks, SourceFundamentals, SourceMetrics, SourceUniverse:
		return true
	}
	return false
}

// DataSpec describes how to fetch a named field: which source category it
// lives in and the field name within that source. Specs are immutable and
// used as alias targets in the session's field registry.
type DataSpec struct {
	Source SourceCategory `json:"source"`
	Field  string         `json:"field"`
}

func (s DataSpec) String() string {
	return fmt.Sprintf("%s/%s", s.Source, s.Field)
}
