package domain

import (
	"fmt"
	"strings"
)

// SearchType selects which end of the address the pattern must match.
type SearchType string

const (
	SearchPrefix SearchType = "prefix"
	SearchSuffix SearchType = "suffix"
)

// ParseSearchType validates a raw search type value.
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case SearchPrefix, SearchSuffix:
		return SearchType(s), nil
	default:
		return "", fmt.Errorf("unknown search type %q", s)
	}
}

// Base58Alphabet is the 58-symbol alphabet valid in Solana addresses. It
// excludes 0, O, I and l, which base58 drops for being visually ambiguous.
const Base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const (
	PatternMinLen = 1
	PatternMaxLen = 4
)

// ValidatePattern checks the length and alphabet constraints on a vanity
// pattern. Returns ErrInvalidPattern (wrapped with the reason) on violation.
func ValidatePattern(pattern string) error {
	if len(pattern) < PatternMinLen || len(pattern) > PatternMaxLen {
		return fmt.Errorf("%w: length must be between %d and %d characters", ErrInvalidPattern, PatternMinLen, PatternMaxLen)
	}
	for _, r := range pattern {
		if !strings.ContainsRune(Base58Alphabet, r) {
			return fmt.Errorf("%w: character %q is not part of the base58 alphabet", ErrInvalidPattern, r)
		}
	}
	return nil
}

// GenerationRequest is an immutable, validated vanity search request.
type GenerationRequest struct {
	SearchType     SearchType
	Pattern        string
	CaseSensitive  bool
	OwnerID        string
	ConversationID string
}

// Validate re-checks the invariants a request must satisfy before it may be
// queued. The conversation layer validates fields as it collects them; this
// is the authoritative check at the submission boundary.
func (r GenerationRequest) Validate() error {
	if _, err := ParseSearchType(string(r.SearchType)); err != nil {
		return err
	}
	if err := ValidatePattern(r.Pattern); err != nil {
		return err
	}
	if r.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if r.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	return nil
}
