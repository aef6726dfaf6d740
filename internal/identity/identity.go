package identity

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

var (
	propertyRe = regexp.MustCompile(`[^a-z0-9]+`)
	suffixRe   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// placeholderMark tags synthesized identities. NormalizeProperty strips "_"
// from property ids, so the first underscore always separates the property
// prefix from the suffix and a real raw uid can never reproduce a placeholder
// whole (the timestamp and sequence keep them unique besides).
const placeholderMark = "noid"

// Generator derives stable composite UIDs for booking observations.
// Generate is pure; only Placeholder consumes the internal sequence.
type Generator struct {
	seq atomic.Int64
}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate derives the composite UID correlating repeated observations of the
// same logical booking. The normalized property prefix keeps identical raw
// ids on different properties apart.
func (g *Generator) Generate(rawUID, propertyID string) string {
	return NormalizeProperty(propertyID) + "_" + StableSuffix(rawUID)
}

// Placeholder synthesizes an identity for an observation that arrived without
// a usable raw uid. The result is unique per call so it can never be
// reconciled against a later well-formed observation; callers are expected to
// log the data-quality warning.
func (g *Generator) Placeholder(sourceID, propertyID string, observedAt time.Time) string {
	return fmt.Sprintf("%s_%s-%s-%d-%d",
		NormalizeProperty(propertyID),
		placeholderMark,
		NormalizeProperty(sourceID),
		observedAt.UTC().UnixNano(),
		g.seq.Add(1),
	)
}

// NormalizeProperty lowercases a property identifier and collapses everything
// outside [a-z0-9] to single dashes. Empty input maps to "unknown" so a
// missing property still yields a parseable composite.
func NormalizeProperty(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = propertyRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unknown"
	}
	return s
}

// StableSuffix extracts the stable portion of a source-provided raw uid.
// Calendar feeds report uids like "4aa09ce2…@airbnb.com"; the host part is
// presentation and may vary between exports, the local part is the identity.
func StableSuffix(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '@'); i > 0 {
		s = s[:i]
	}
	return suffixRe.ReplaceAllString(s, "-")
}
