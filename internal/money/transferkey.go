package money

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CanonicalSeparator is the key separator emitted by this service. The
// source system has historically used "::" in one sync path and "-" in
// another; this service accepts both on read and always emits "::".
const CanonicalSeparator = "::"

var legacySeparator = "-"

// ParsedTransferKey is a settled-transfer textual entry of the form
// "fromId{sep}toId[:amount]", decoded but not yet id-resolved.
type ParsedTransferKey struct {
	FromRaw string
	ToRaw   string
	Amount  *decimal.Decimal
}

// ParseTransferKey decodes a textual settled-transfer key, accepting either
// the canonical "::" separator or the legacy "-" separator. An optional
// ":amount" suffix carries the snapshot amount. Returns false if the entry
// cannot be parsed at all (it should then be dropped silently by the
// caller, per the bulk-sync merge rule).
func ParseTransferKey(raw string) (ParsedTransferKey, bool) {
	body := raw
	var amount *decimal.Decimal
	if idx := strings.LastIndex(body, ":"); idx > 0 && body[idx-1] != ':' {
		// A trailing ":amount" suffix, distinguished from the "::" separator
		// by the fact that it is not itself a double colon.
		candidate := body[idx+1:]
		if d, err := decimal.NewFromString(candidate); err == nil {
			amount = &d
			body = body[:idx]
		}
	}

	if strings.Contains(body, CanonicalSeparator) {
		parts := strings.SplitN(body, CanonicalSeparator, 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return ParsedTransferKey{}, false
		}
		return ParsedTransferKey{FromRaw: parts[0], ToRaw: parts[1], Amount: amount}, true
	}

	// Legacy encoding joined two UUIDs with a bare "-", which collides with
	// the hyphens inside the UUIDs themselves. Since a UUID's canonical form
	// is always exactly 36 characters, split positionally instead of on the
	// separator.
	const uuidLen = 36
	if len(body) == uuidLen*2+len(legacySeparator) && body[uuidLen:uuidLen+len(legacySeparator)] == legacySeparator {
		from, to := body[:uuidLen], body[uuidLen+len(legacySeparator):]
		if _, err := uuid.Parse(from); err == nil {
			if _, err := uuid.Parse(to); err == nil {
				return ParsedTransferKey{FromRaw: from, ToRaw: to, Amount: amount}, true
			}
		}
	}
	return ParsedTransferKey{}, false
}

// FormatTransferKey emits the canonical "::" encoding of a resolved
// transfer, including its snapshot amount.
func FormatTransferKey(from, to uuid.UUID, amount decimal.Decimal) string {
	return fmt.Sprintf("%s%s%s:%s", from, CanonicalSeparator, to, amount.StringFixed(2))
}
