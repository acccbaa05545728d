package ledger

import (
	"errors"
	"time"
)

// Status is the lifecycle status of an issued permit.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// ErrDuplicateAETNumber is returned by repositories when the permit number is already
// recorded for another (request, state) pair.
var ErrDuplicateAETNumber = errors.New("aet number already issued")

// Plates is the plate snapshot of a composition at sync time.
type Plates struct {
	Tractor        *string `json:"tractor,omitempty"`
	FirstTrailer   *string `json:"firstTrailer,omitempty"`
	SecondTrailer  *string `json:"secondTrailer,omitempty"`
	Dolly          *string `json:"dolly,omitempty"`
	Flatbed        *string `json:"flatbed,omitempty"`
	GenericTrailer *string `json:"genericTrailer,omitempty"`
}

// ConflictPlates returns the plates that take part in conflict matching.
func (p Plates) ConflictPlates() []string {
	out := make([]string, 0, 3)
	for _, v := range []*string{p.Tractor, p.FirstTrailer, p.SecondTrailer} {
		if v != nil && *v != "" {
			out = append(out, *v)
		}
	}
	return out
}

// Entry is one issued permit, unique per (request, state).
type Entry struct {
	ID            int64     `json:"id"`
	RequestID     int64     `json:"requestId"`
	RequestNumber string    `json:"requestNumber"`
	TransporterID int64     `json:"transporterId"`
	State         string    `json:"state"`
	AETNumber     *string   `json:"aetNumber,omitempty"`
	SelectedTaxID *string   `json:"selectedTaxId,omitempty"`
	IssuedAt      time.Time `json:"issuedAt"`
	ValidUntil    time.Time `json:"validUntil"`
	Status        Status    `json:"status"`
	Plates        Plates    `json:"plates"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsBlockingCandidate reports whether the entry may block a new request at now.
func (e *Entry) IsBlockingCandidate(now time.Time) bool {
	return e.Status == StatusActive && e.ValidUntil.After(now)
}

// Conflict describes an issued permit that overlaps a requested composition.
type Conflict struct {
	RequestID         int64     `json:"requestId"`
	RequestNumber     string    `json:"requestNumber"`
	State             string    `json:"state"`
	AETNumber         string    `json:"aetNumber"`
	ValidUntil        time.Time `json:"validUntil"`
	DaysRemaining     int       `json:"daysRemaining"`
	OverlappingPlates []string  `json:"overlappingPlates"`
	Blocking          bool      `json:"blocking"`
}

// Filter controls ledger listing.
type Filter struct {
	State         *string
	Status        *Status
	TransporterID *int64
	Plate         *string
	AETNumber     *string
}
