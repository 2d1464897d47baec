// Package versioning computes branch structure over the version groups of a
// conversation. All functions here are pure: they operate on a snapshot of
// resolved groups loaded from storage and have no side effects, so they are
// safe to call repeatedly and concurrently with writes.
package versioning

import (
	"fmt"
	"time"

	"github.com/forkchat/forkchat/internal/models"
)

// VersionRef identifies one version group realizing a variant.
type VersionRef struct {
	VersionID string    `json:"versionId"`
	Timestamp time.Time `json:"timestamp"`
}

// Variant is one distinct content value observed at a position, together
// with every version group that realizes it.
type Variant struct {
	Content  string       `json:"content"`
	Versions []VersionRef `json:"versions"`
}

// AnnotatedMessage is a message of the reference group decorated with the
// alternatives available at its position.
type AnnotatedMessage struct {
	models.Message
	IsDivergencePoint bool      `json:"isDivergencePoint"`
	AvailableVersions []Variant `json:"availableVersions,omitempty"`
}

// prefixDivergence returns the first position at which the message content
// of two groups differs. If the overlapping range is identical, it returns
// the overlap length. Comparison is by content, not id: branches sharing an
// unedited prefix hold the same rows, but a re-typed identical message still
// counts as the same history.
func prefixDivergence(a, b models.ResolvedVersion) int {
	n := len(a.Messages)
	if len(b.Messages) < n {
		n = len(b.Messages)
	}
	for i := 0; i < n; i++ {
		if a.Messages[i].Content != b.Messages[i].Content {
			return i
		}
	}
	return n
}

// VariantsAt reports the distinct content variants at position among the
// groups whose history is indistinguishable from the reference group before
// that position.
//
// A group shorter than position+1 has not reached the position and is never
// a candidate. A group whose content already diverged from the reference at
// an earlier position is not a sibling alternative here, only a different
// earlier branch, and is excluded. Surviving groups are bucketed by the
// exact content at the position; two or more buckets make the position a
// divergence point.
func VariantsAt(groups []models.ResolvedVersion, ref models.ResolvedVersion, position int) ([]Variant, error) {
	if position < 0 || position >= len(ref.Messages) {
		return nil, fmt.Errorf("position %d out of range for version %s (length %d): %w",
			position, ref.ID, len(ref.Messages), models.ErrInvariant)
	}

	// Groups arrive in creation order, which keeps timestamp ties stable.
	var order []string
	byContent := make(map[string][]VersionRef)
	for _, g := range groups {
		if len(g.Messages) <= position {
			continue
		}
		if g.ID != ref.ID && prefixDivergence(ref, g) < position {
			continue
		}
		content := g.Messages[position].Content
		if _, seen := byContent[content]; !seen {
			order = append(order, content)
		}
		byContent[content] = append(byContent[content], VersionRef{
			VersionID: g.ID,
			Timestamp: g.CreatedAt,
		})
	}

	variants := make([]Variant, 0, len(order))
	for _, content := range order {
		variants = append(variants, Variant{Content: content, Versions: byContent[content]})
	}
	return variants, nil
}

// Annotate decorates every message of the reference group with its
// divergence information. A position with a single surviving variant has
// nothing to switch between and is reported as non-divergent, even if
// already-excluded branches happen to touch it.
func Annotate(groups []models.ResolvedVersion, ref models.ResolvedVersion) ([]AnnotatedMessage, error) {
	annotated := make([]AnnotatedMessage, 0, len(ref.Messages))
	for i, msg := range ref.Messages {
		variants, err := VariantsAt(groups, ref, i)
		if err != nil {
			return nil, err
		}
		am := AnnotatedMessage{Message: msg}
		if len(variants) > 1 {
			am.IsDivergencePoint = true
			am.AvailableVersions = variants
		}
		annotated = append(annotated, am)
	}
	return annotated, nil
}
