package vehicle

import (
	"errors"
	"time"

	"github.com/aet-hub/aet-hub/internal/domain/license"
)

// Type is the vehicle role classification.
type Type string

const (
	TypeTractorUnit Type = "tractor_unit"
	TypeSemiTrailer Type = "semi_trailer"
	TypeDolly       Type = "dolly"
	TypeFlatbed     Type = "flatbed"
	TypeTruck       Type = "truck"
)

// Status represents vehicle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	ErrInvalidType  = errors.New("invalid vehicle type")
	ErrInvalidPlate = errors.New("invalid plate")
)

// Vehicle is a registered vehicle owned by a transporter.
type Vehicle struct {
	ID            int64     `json:"id"`
	TransporterID int64     `json:"transporterId"`
	Plate         string    `json:"plate"`
	Type          Type      `json:"type"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Year          int       `json:"year"`
	Renavam       string    `json:"renavam"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func ValidateType(t Type) error {
	switch t {
	case TypeTractorUnit, TypeSemiTrailer, TypeDolly, TypeFlatbed, TypeTruck:
		return nil
	default:
		return ErrInvalidType
	}
}

// NormalizePlate normalizes and validates a plate. Both the legacy (ABC1234) and the
// Mercosul (ABC1D23) formats are seven characters.
func NormalizePlate(plate string) (string, error) {
	p := license.NormalizePlate(plate)
	if len(p) != 7 {
		return "", ErrInvalidPlate
	}
	for i, r := range p {
		isLetter := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		switch i {
		case 0, 1, 2:
			if !isLetter {
				return "", ErrInvalidPlate
			}
		case 4:
			if !isLetter && !isDigit {
				return "", ErrInvalidPlate
			}
		default:
			if !isDigit {
				return "", ErrInvalidPlate
			}
		}
	}
	return p, nil
}

// Filter controls vehicle listing.
type Filter struct {
	TransporterID *int64
	Type          *Type
	Plate         *string
}
