package history

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"time"
)

type signaturePayload struct {
	HistoryID string `json:"historyId"`
	LicenseID string `json:"licenseId"`
	State     string `json:"state"`
	Actor     string `json:"actor"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
	Comments  string `json:"comments,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func buildSignaturePayload(e *Entry) signaturePayload {
	payload := signaturePayload{
		HistoryID: e.HistoryID.String(),
		LicenseID: strconv.FormatInt(e.LicenseID, 10),
		State:     e.State,
		Actor:     e.Actor,
		OldStatus: string(e.OldStatus),
		NewStatus: string(e.NewStatus),
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Comments != nil {
		payload.Comments = *e.Comments
	}
	return payload
}

// Sign generates an HMAC-SHA256 signature over the entry's canonical payload.
func Sign(e *Entry, key []byte) ([]byte, error) {
	data, err := json.Marshal(buildSignaturePayload(e))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// Verify checks the entry's signature against key. Unsigned entries never verify.
func Verify(e *Entry, key []byte) (bool, error) {
	if len(e.Signature) == 0 {
		return false, nil
	}
	expected, err := Sign(e, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, e.Signature), nil
}
