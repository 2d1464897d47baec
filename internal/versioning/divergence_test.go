package versioning

import (
	"testing"
	"time"

	"github.com/forkchat/forkchat/internal/models"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// group builds a resolved version whose messages carry the given contents at
// positions 0..n-1. Message ids are globally unique unless shared explicitly.
func group(id string, createdOffset time.Duration, firstMsgID int64, contents ...string) models.ResolvedVersion {
	rv := models.ResolvedVersion{
		VersionGroup: models.VersionGroup{
			ID:        id,
			ConvID:    1,
			CreatedAt: baseTime.Add(createdOffset),
			UpdatedAt: baseTime.Add(createdOffset),
		},
	}
	for i, content := range contents {
		rv.Messages = append(rv.Messages, models.Message{
			ID:       firstMsgID + int64(i),
			ConvID:   1,
			Role:     roleFor(i),
			Content:  content,
			Position: i,
		})
	}
	return rv
}

func roleFor(position int) string {
	if position%2 == 0 {
		return "user"
	}
	return "assistant"
}

func TestVariantsAtEditedFirstMessage(t *testing.T) {
	v1 := group("v1", 0, 1, "hi", "hello back")
	v2 := group("v2", time.Minute, 3, "hey", "hey back")
	groups := []models.ResolvedVersion{v1, v2}

	variants, err := VariantsAt(groups, v2, 0)
	require.NoError(t, err)
	require.Len(t, variants, 2)

	require.Equal(t, "hi", variants[0].Content)
	require.Equal(t, []VersionRef{{VersionID: "v1", Timestamp: v1.CreatedAt}}, variants[0].Versions)
	require.Equal(t, "hey", variants[1].Content)
	require.Equal(t, []VersionRef{{VersionID: "v2", Timestamp: v2.CreatedAt}}, variants[1].Versions)
}

func TestVariantsAtAfterForkExcludesEarlierBranch(t *testing.T) {
	// v1 and v2 fork at 0, so at position 1 v1 is a different earlier
	// branch, not a sibling alternative.
	v1 := group("v1", 0, 1, "hi", "hello back")
	v2 := group("v2", time.Minute, 3, "hey", "hey back")
	groups := []models.ResolvedVersion{v1, v2}

	variants, err := VariantsAt(groups, v2, 1)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	require.Equal(t, "hey back", variants[0].Content)
}

func TestVariantsAtSharedPrefixFork(t *testing.T) {
	v1 := group("v1", 0, 1, "a", "b", "c")
	v2 := group("v2", time.Minute, 4, "a", "b", "x")
	groups := []models.ResolvedVersion{v1, v2}

	// Identical through position 1: no divergence there.
	variants, err := VariantsAt(groups, v2, 1)
	require.NoError(t, err)
	require.Len(t, variants, 1)

	// Fork shows up exactly at position 2.
	variants, err = VariantsAt(groups, v2, 2)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	require.Equal(t, "c", variants[0].Content)
	require.Equal(t, "x", variants[1].Content)
}

func TestVariantsAtDeeperThanForkIsNotDivergent(t *testing.T) {
	v1 := group("v1", 0, 1, "a", "b", "c", "d")
	v2 := group("v2", time.Minute, 5, "a", "b", "x", "y")
	groups := []models.ResolvedVersion{v1, v2}

	variants, err := VariantsAt(groups, v2, 3)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	require.Equal(t, "y", variants[0].Content)
}

func TestVariantsAtShortGroupIsNeverACandidate(t *testing.T) {
	v1 := group("v1", 0, 1, "a", "b")
	v2 := group("v2", time.Minute, 3, "a")
	groups := []models.ResolvedVersion{v1, v2}

	variants, err := VariantsAt(groups, v1, 1)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	require.Equal(t, "b", variants[0].Content)
}

func TestVariantsAtComparesContentNotIDs(t *testing.T) {
	// Same prefix content under different message ids still counts as a
	// shared history, and identical content at the target position folds
	// into a single variant.
	v1 := group("v1", 0, 1, "a", "b")
	v2 := group("v2", time.Minute, 10, "a", "b")
	v3 := group("v3", 2*time.Minute, 20, "a", "z")
	groups := []models.ResolvedVersion{v1, v2, v3}

	variants, err := VariantsAt(groups, v1, 1)
	require.NoError(t, err)
	require.Len(t, variants, 2)

	require.Equal(t, "b", variants[0].Content)
	require.Len(t, variants[0].Versions, 2)
	require.Equal(t, "v1", variants[0].Versions[0].VersionID)
	require.Equal(t, "v2", variants[0].Versions[1].VersionID)
	require.Equal(t, "z", variants[1].Content)
}

func TestVariantsAtThreeWayFork(t *testing.T) {
	v1 := group("v1", 0, 1, "a", "b")
	v2 := group("v2", time.Minute, 3, "a", "c")
	v3 := group("v3", 2*time.Minute, 5, "a", "d")
	groups := []models.ResolvedVersion{v1, v2, v3}

	variants, err := VariantsAt(groups, v3, 1)
	require.NoError(t, err)
	require.Len(t, variants, 3)
	require.Equal(t, "b", variants[0].Content)
	require.Equal(t, "c", variants[1].Content)
	require.Equal(t, "d", variants[2].Content)
}

func TestVariantsAtPositionOutOfRange(t *testing.T) {
	v1 := group("v1", 0, 1, "a", "b")

	_, err := VariantsAt([]models.ResolvedVersion{v1}, v1, 2)
	require.ErrorIs(t, err, models.ErrInvariant)

	_, err = VariantsAt([]models.ResolvedVersion{v1}, v1, -1)
	require.ErrorIs(t, err, models.ErrInvariant)
}

func TestAnnotateMarksOnlyGenuineDivergencePoints(t *testing.T) {
	v1 := group("v1", 0, 1, "hi", "hello back")
	v2 := group("v2", time.Minute, 3, "hey", "hey back")
	groups := []models.ResolvedVersion{v1, v2}

	annotated, err := Annotate(groups, v2)
	require.NoError(t, err)
	require.Len(t, annotated, 2)

	require.True(t, annotated[0].IsDivergencePoint)
	require.Len(t, annotated[0].AvailableVersions, 2)

	// Position 1 touches another branch, but that branch already diverged.
	require.False(t, annotated[1].IsDivergencePoint)
	require.Empty(t, annotated[1].AvailableVersions)
}

func TestAnnotateSingleGroupHasNoDivergence(t *testing.T) {
	v1 := group("v1", 0, 1, "a", "b", "c")

	annotated, err := Annotate([]models.ResolvedVersion{v1}, v1)
	require.NoError(t, err)
	for _, msg := range annotated {
		require.False(t, msg.IsDivergencePoint)
	}
}
