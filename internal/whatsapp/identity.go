package whatsapp

import (
	"context"
	"regexp"
	"strings"
)

// Transport address suffixes.
const (
	SuffixUser  = "@s.whatsapp.net"
	SuffixGroup = "@g.us"
	SuffixLID   = "@lid"
)

var phonePattern = regexp.MustCompile(`^\d{10,15}$`)

// Identity is the normalized view of a chat participant derived from the
// raw addresses a webhook carries.
type Identity struct {
	// ContactNumber is the stable contact key: normalized digits for real
	// numbers, the opaque digits for LID-only participants, the full
	// address for groups.
	ContactNumber string
	// ReplyAddress is the raw reply-capable address captured at receipt
	// time. LIDs are instance-specific, so this is stored verbatim.
	ReplyAddress string
	// MediaLookupNumber is the number used for profile/media lookups;
	// empty when no lookup makes sense (groups, bare LIDs).
	MediaLookupNumber string
	// Degraded flags LID-only participants whose display name falls back
	// to the opaque id.
	Degraded bool
	IsGroup  bool
}

// ResolveContactIdentity normalizes a raw remote address plus an optional
// alternate real-number address into a contact identity.
func ResolveContactIdentity(rawRemote, rawAlt string, isGroup bool) Identity {
	rawRemote = strings.TrimSpace(rawRemote)
	rawAlt = strings.TrimSpace(rawAlt)

	if isGroup || strings.HasSuffix(rawRemote, SuffixGroup) {
		return Identity{
			ContactNumber: rawRemote,
			ReplyAddress:  rawRemote,
			IsGroup:       true,
		}
	}

	if strings.HasSuffix(rawRemote, SuffixLID) {
		// Gateways may supply the participant's real number alongside the
		// LID; prefer it for identity and lookups but keep the LID as the
		// reply target, since only the LID is routable on this instance.
		if rawAlt != "" && !strings.HasSuffix(rawAlt, SuffixLID) {
			number := StripSuffixes(rawAlt)
			return Identity{
				ContactNumber:     number,
				ReplyAddress:      rawRemote,
				MediaLookupNumber: number,
			}
		}
		return Identity{
			ContactNumber: StripSuffixes(rawRemote),
			ReplyAddress:  rawRemote,
			Degraded:      true,
		}
	}

	number := StripSuffixes(rawRemote)
	return Identity{
		ContactNumber:     number,
		ReplyAddress:      rawRemote,
		MediaLookupNumber: number,
	}
}

// StripSuffixes removes any transport suffix from an address.
func StripSuffixes(address string) string {
	for _, suffix := range []string{SuffixUser, SuffixLID, SuffixGroup} {
		if strings.HasSuffix(address, suffix) {
			return strings.TrimSuffix(address, suffix)
		}
	}
	return address
}

// IsPhoneNumber reports whether the value is plain E.164-ish digits.
func IsPhoneNumber(number string) bool {
	return phonePattern.MatchString(number)
}

// NormalizeNumber reduces a raw phone value to digits and applies the
// configured country prefix. Values that do not look like phone numbers
// (LIDs, group ids) pass through untouched.
func NormalizeNumber(raw, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return raw
	}
	// Opaque LID digits are longer than any E.164 number; leave them alone.
	if len(digits) > 15 {
		return digits
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return digits
}

// ReplyStore is the slice of the message store the reply resolver needs.
type ReplyStore interface {
	LastInboundAddress(ctx context.Context, ticketID string) (string, error)
}

// ReplyResolver derives the address a send should target.
type ReplyResolver struct {
	messages ReplyStore
}

// NewReplyResolver constructs the resolver.
func NewReplyResolver(messages ReplyStore) *ReplyResolver {
	return &ReplyResolver{messages: messages}
}

// Resolve returns the reply address for a ticket's contact, or "" when no
// usable address can be derived. Callers must refuse to send on "", never
// guess.
func (r *ReplyResolver) Resolve(ctx context.Context, ticketID, contactNumber string) (string, error) {
	// Real numbers are routable as-is; no lookup needed.
	if IsPhoneNumber(contactNumber) {
		return contactNumber, nil
	}

	saved, err := r.messages.LastInboundAddress(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if saved == "" {
		// A bare LID without a captured address is not sendable.
		return "", nil
	}

	switch {
	case strings.HasSuffix(saved, SuffixLID):
		// Full LID form is required for LID routing.
		return saved, nil
	case strings.HasSuffix(saved, SuffixUser):
		return strings.TrimSuffix(saved, SuffixUser), nil
	case strings.HasSuffix(saved, SuffixGroup):
		return saved, nil
	default:
		return saved, nil
	}
}
