package license

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the per-state status of a license request. Values are persisted verbatim
// inside status tags.
type Status string

const (
	StatusPendingRegistration    Status = "pending_registration"
	StatusRegistrationInProgress Status = "registration_in_progress"
	StatusRejected               Status = "rejected"
	StatusUnderReview            Status = "under_review"
	StatusPendingApproval        Status = "pending_approval"
	StatusApproved               Status = "approved"
	StatusCanceled               Status = "canceled"
)

var (
	ErrInvalidTransition = errors.New("invalid license status transition")
	ErrUnknownStatus     = errors.New("unknown license status")
	ErrUnknownState      = errors.New("unknown state code")
)

var transitions = map[Status][]Status{
	StatusPendingRegistration:    {StatusRegistrationInProgress, StatusCanceled},
	StatusRegistrationInProgress: {StatusRejected, StatusUnderReview, StatusCanceled},
	StatusUnderReview:            {StatusPendingApproval, StatusCanceled},
	StatusPendingApproval:        {StatusApproved, StatusCanceled},
	StatusApproved:               {},
	StatusRejected:               {},
	StatusCanceled:               {},
}

// ParseStatus validates a raw status value.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.TrimSpace(value))
	if _, ok := transitions[s]; !ok {
		return "", ErrUnknownStatus
	}
	return s, nil
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCanceled
}

// CanTransitionTo validates a single-state status change. Re-applying the current
// status is an amendment and is always allowed.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// States lists the accepted state codes: the federative units plus the federal highway
// authority, which issues permits for federal roads.
var States = []string{
	"AC", "AL", "AP", "AM", "BA", "CE", "DF", "ES", "GO", "MA", "MT", "MS", "MG", "PA",
	"PB", "PR", "PE", "PI", "RJ", "RN", "RS", "RO", "RR", "SC", "SP", "SE", "TO", "DNIT",
}

// NormalizeState upper-cases and validates a state code.
func NormalizeState(state string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(state))
	for _, s := range States {
		if s == code {
			return code, nil
		}
	}
	return "", ErrUnknownState
}

// NormalizePlate strips separators and upper-cases a plate so that "abc-1234" and
// "ABC1234" compare equal.
func NormalizePlate(plate string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(plate) {
		if r == '-' || r == ' ' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Request is the license request aggregate. One request covers one vehicle composition
// across several states, each with its own status encoded in StateStatuses.
type Request struct {
	ID               int64     `json:"id"`
	RequestNumber    string    `json:"requestNumber"`
	OwnerUserID      uuid.UUID `json:"ownerUserId"`
	TransporterID    int64     `json:"transporterId"`
	LicenseType      string    `json:"licenseType"`
	TractorUnitID    *int64    `json:"tractorUnitId,omitempty"`
	FirstTrailerID   *int64    `json:"firstTrailerId,omitempty"`
	SecondTrailerID  *int64    `json:"secondTrailerId,omitempty"`
	DollyID          *int64    `json:"dollyId,omitempty"`
	FlatbedID        *int64    `json:"flatbedId,omitempty"`
	MainPlate        string    `json:"mainPlate"`
	AdditionalPlates []string  `json:"additionalPlates"`
	Length           float64   `json:"length"`
	Width            float64   `json:"width"`
	Height           float64   `json:"height"`
	CargoType        string    `json:"cargoType"`
	States           []string  `json:"states"`
	StateStatuses    []string  `json:"stateStatuses"`
	StateFiles       []string  `json:"stateFiles"`
	StateAETNumbers  []string  `json:"stateAETNumbers"`
	StateCnpjs       []string  `json:"stateCnpjs"`
	Status           Status    `json:"status"`
	IsDraft          bool      `json:"isDraft"`
	Comments         *string   `json:"comments,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasState reports whether state is one of the requested states.
func (r *Request) HasState(state string) bool {
	for _, s := range r.States {
		if s == state {
			return true
		}
	}
	return false
}

// StateStatus returns the decoded status record for state. A state with no tag is
// reported as pending registration.
func (r *Request) StateStatus(state string) StatusRecord {
	if rec, ok := DecodeStatuses(r.StateStatuses)[state]; ok {
		return rec
	}
	return StatusRecord{State: state, Status: StatusPendingRegistration}
}

// AETNumber returns the permit number stored for state, if any.
func (r *Request) AETNumber(state string) (string, bool) {
	v, ok := DecodeValues(r.StateAETNumbers)[state]
	return v, ok && v != ""
}

// SelectedTaxID returns the legal-entity tax id chosen for state, if any.
func (r *Request) SelectedTaxID(state string) (string, bool) {
	v, ok := DecodeValues(r.StateCnpjs)[state]
	return v, ok && v != ""
}

// AllStatesApproved reports whether every requested state is approved.
func (r *Request) AllStatesApproved() bool {
	if len(r.States) == 0 {
		return false
	}
	decoded := DecodeStatuses(r.StateStatuses)
	for _, s := range r.States {
		rec, ok := decoded[s]
		if !ok || rec.Status != StatusApproved {
			return false
		}
	}
	return true
}

// RecomputeAggregate promotes the aggregate status to approved once every state is
// approved. It never demotes.
func (r *Request) RecomputeAggregate() {
	if r.AllStatesApproved() {
		r.Status = StatusApproved
	}
}

// InitStateStatuses seeds a pending-registration tag for every requested state that has
// none yet.
func (r *Request) InitStateStatuses() {
	decoded := DecodeStatuses(r.StateStatuses)
	for _, s := range r.States {
		if _, ok := decoded[s]; ok {
			continue
		}
		r.StateStatuses = UpsertTag(r.StateStatuses, s, EncodeStatus(s, StatusPendingRegistration, nil, nil))
	}
}

// CompositionRefs returns the vehicle references in role order.
func (r *Request) CompositionRefs() Composition {
	return Composition{
		TractorUnitID:   r.TractorUnitID,
		FirstTrailerID:  r.FirstTrailerID,
		SecondTrailerID: r.SecondTrailerID,
		DollyID:         r.DollyID,
		FlatbedID:       r.FlatbedID,
	}
}

// Composition groups the five vehicle role references.
type Composition struct {
	TractorUnitID   *int64
	FirstTrailerID  *int64
	SecondTrailerID *int64
	DollyID         *int64
	FlatbedID       *int64
}

// IDs returns the non-nil references.
func (c Composition) IDs() []int64 {
	out := make([]int64, 0, 5)
	for _, id := range []*int64{c.TractorUnitID, c.FirstTrailerID, c.SecondTrailerID, c.DollyID, c.FlatbedID} {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}
