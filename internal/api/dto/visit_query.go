package dto

import "time"

// VisitCursor marks a position in the last_visit-descending order. The row
// id breaks ties between records sharing a timestamp, so pages never skip
// or repeat boundary rows.
type VisitCursor struct {
	LastVisit time.Time `json:"lastVisit"`
	ID        uint64    `json:"id"`
}

// VisitQuery filters the visit listing. Cursor pagination runs on
// last_visit descending: pass the previous page's cursor to continue.
type VisitQuery struct {
	Q      string
	IP     string
	From   *time.Time
	To     *time.Time
	Cursor *VisitCursor
	Limit  int
}

type BlockResult struct {
	Matched  int64 `json:"matchedCount"`
	Modified int64 `json:"modifiedCount"`
}
