package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/domain/license"
)

// Entry is an immutable record of one per-state status change.
type Entry struct {
	ID        int64          `json:"id"`
	HistoryID uuid.UUID      `json:"historyId"`
	LicenseID int64          `json:"licenseId"`
	State     string         `json:"state"`
	Actor     string         `json:"actor"`
	OldStatus license.Status `json:"oldStatus"`
	NewStatus license.Status `json:"newStatus"`
	Comments  *string        `json:"comments,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Signature []byte         `json:"signature,omitempty"`
}

// NewEntry creates a history entry stamped with the current time at the precision the
// database keeps, so signatures survive a round trip.
func NewEntry(licenseID int64, state, actor string, oldStatus, newStatus license.Status, comments *string) *Entry {
	return &Entry{
		HistoryID: uuid.New(),
		LicenseID: licenseID,
		State:     state,
		Actor:     actor,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Comments:  comments,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}
