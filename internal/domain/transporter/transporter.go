package transporter

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTaxID = errors.New("invalid CNPJ/CPF")

// Transporter is the legal entity (company or individual) that owns vehicles and
// license requests.
type Transporter struct {
	ID          int64     `json:"id"`
	OwnerUserID uuid.UUID `json:"ownerUserId"`
	Name        string    `json:"name"`
	TaxID       string    `json:"taxId"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsCompany reports whether the tax id is a CNPJ.
func (t *Transporter) IsCompany() bool {
	return len(t.TaxID) == 14
}

// NormalizeTaxID strips punctuation and validates a CNPJ (14 digits) or CPF (11 digits)
// including its check digits.
func NormalizeTaxID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	id := b.String()
	switch len(id) {
	case 11:
		if !validCPF(id) {
			return "", ErrInvalidTaxID
		}
	case 14:
		if !validCNPJ(id) {
			return "", ErrInvalidTaxID
		}
	default:
		return "", ErrInvalidTaxID
	}
	return id, nil
}

func validCPF(id string) bool {
	if allSame(id) {
		return false
	}
	for n := 9; n <= 10; n++ {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(id[i]-'0') * (n + 1 - i)
		}
		d := sum * 10 % 11
		if d == 10 {
			d = 0
		}
		if d != int(id[n]-'0') {
			return false
		}
	}
	return true
}

var cnpjWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

func validCNPJ(id string) bool {
	if allSame(id) {
		return false
	}
	for n := 12; n <= 13; n++ {
		weights := cnpjWeights[13-n:]
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(id[i]-'0') * weights[i]
		}
		d := 0
		if r := sum % 11; r >= 2 {
			d = 11 - r
		}
		if d != int(id[n]-'0') {
			return false
		}
	}
	return true
}

func allSame(id string) bool {
	for i := 1; i < len(id); i++ {
		if id[i] != id[0] {
			return false
		}
	}
	return true
}

// Filter controls transporter listing.
type Filter struct {
	OwnerUserID *uuid.UUID
	Search      *string
}
