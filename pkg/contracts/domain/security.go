package domain

import (
	"time"
)

// SecurityRecord is one point-in-time row of the security master. A symbol
// maps to different records over time as companies rename, relist or change
// share classes; Permno tracks the issuing company across those changes while
// SecurityID identifies one listing interval and keys its stored history.
type SecurityRecord struct {
	SecurityID string     `json:"security_id" csv:"security_id"`
	Permno     int64      `json:"permno" csv:"permno"`
	Symbol     string     `json:"symbol" csv:"symbol"`
	Company    string     `json:"company" csv:"company"`
	CIK        string     `json:"cik,omitempty" csv:"cik"`
	CUSIP      string     `json:"cusip,omitempty" csv:"cusip"`
	StartDate  time.Time  `json:"start_date" csv:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty" csv:"end_date"`
}

// Contains reports whether the record's validity interval [StartDate, EndDate)
// covers the given date. A nil EndDate means the record is still open.
func (r *SecurityRecord) Contains(asOf time.Time) bool {
	if asOf.Before(r.StartDate) {
		return false
	}
	if r.EndDate == nil {
		return true
	}
	return asOf.Before(*r.EndDate)
}
