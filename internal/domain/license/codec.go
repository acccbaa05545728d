package license

import (
	"strings"
	"time"
)

// DateLayout is the on-disk date format inside tags.
const DateLayout = "2006-01-02"

// StatusRecord is one decoded status tag.
type StatusRecord struct {
	State      string     `json:"state"`
	Status     Status     `json:"status"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
	IssuedAt   *time.Time `json:"issuedAt,omitempty"`
}

// DecodeStatuses parses STATE:STATUS[:VALID_UNTIL[:ISSUED_AT]] tags. Tags without a
// state or status are skipped; the last tag seen for a state wins.
func DecodeStatuses(tags []string) map[string]StatusRecord {
	out := make(map[string]StatusRecord, len(tags))
	for _, tag := range tags {
		parts := strings.Split(tag, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		rec := StatusRecord{State: parts[0], Status: Status(parts[1])}
		if len(parts) > 2 {
			rec.ValidUntil = parseDate(parts[2])
		}
		if len(parts) > 3 {
			rec.IssuedAt = parseDate(parts[3])
		}
		out[rec.State] = rec
	}
	return out
}

// EncodeStatus builds a status tag. An issuance date without a validity date keeps an
// empty validity placeholder (STATE:STATUS::ISSUED) so older readers stay positional.
func EncodeStatus(state string, status Status, validUntil, issuedAt *time.Time) string {
	tag := state + ":" + string(status)
	switch {
	case validUntil != nil && issuedAt != nil:
		return tag + ":" + FormatDate(*validUntil) + ":" + FormatDate(*issuedAt)
	case validUntil != nil:
		return tag + ":" + FormatDate(*validUntil)
	case issuedAt != nil:
		return tag + "::" + FormatDate(*issuedAt)
	default:
		return tag
	}
}

// EncodeValue builds a STATE:VALUE tag for the file, permit-number and tax-id lists.
func EncodeValue(state, value string) string {
	return state + ":" + value
}

// DecodeValues parses STATE:VALUE tags, splitting on the first colon only since values
// such as document URLs contain colons.
func DecodeValues(tags []string) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		idx := strings.Index(tag, ":")
		if idx <= 0 {
			continue
		}
		out[tag[:idx]] = tag[idx+1:]
	}
	return out
}

// UpsertTag replaces the tag for state or appends newTag. Unrelated tags keep their order.
func UpsertTag(tags []string, state, newTag string) []string {
	prefix := state + ":"
	out := make([]string, 0, len(tags)+1)
	replaced := false
	for _, tag := range tags {
		if strings.HasPrefix(tag, prefix) {
			if !replaced {
				out = append(out, newTag)
				replaced = true
			}
			continue
		}
		out = append(out, tag)
	}
	if !replaced {
		out = append(out, newTag)
	}
	return out
}

// FormatDate renders t as an ISO calendar date in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses an ISO calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := ParseDate(value)
	if err != nil {
		return nil
	}
	return &t
}
