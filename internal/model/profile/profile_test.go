package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func fullFields() Fields {
	return Fields{
		AgeRange:                   strPtr("25-34"),
		LifeStage:                  strPtr("early career"),
		OccupationType:             strPtr("salaried"),
		LocationContext:            strPtr("urban"),
		FamilyStructure:            strPtr("couple"),
		MaritalStatus:              strPtr("married"),
		TotalDependentsCount:       intPtr(1),
		ChildrenCount:              intPtr(1),
		CaregivingResponsibilities: strPtr("none"),
	}
}

func TestIsCompleteRequiresAllFieldsAndAccount(t *testing.T) {
	p := &Profile{UserID: "u1", Fields: fullFields()}
	assert.True(t, IsComplete(p, 1))
	assert.False(t, IsComplete(p, 0))

	for _, name := range FieldNames {
		partial := fullFields()
		switch name {
		case FieldTotalDependentsCount:
			partial.TotalDependentsCount = nil
		case FieldChildrenCount:
			partial.ChildrenCount = nil
		default:
			*partial.stringField(name) = nil
		}
		assert.False(t, IsComplete(&Profile{Fields: partial}, 3), "missing %s must be incomplete", name)
	}
	assert.False(t, IsComplete(nil, 1))
}

func TestMergeIsLastWriteWins(t *testing.T) {
	f := Fields{MaritalStatus: strPtr("single")}
	changed := f.Merge(Fields{MaritalStatus: strPtr("married"), ChildrenCount: intPtr(0)})

	assert.ElementsMatch(t, []string{FieldMaritalStatus, FieldChildrenCount}, changed)
	assert.Equal(t, "married", *f.MaritalStatus)

	assert.Empty(t, f.Merge(Fields{MaritalStatus: strPtr("married")}))
}

func TestFieldsFromMapDropsUnknownKeys(t *testing.T) {
	f := FieldsFromMap(map[string]any{
		FieldAgeRange:      "35-44",
		FieldChildrenCount: float64(2),
		"favourite_color":  "blue",
		FieldLifeStage:     "",
	})

	assert.Equal(t, map[string]any{FieldAgeRange: "35-44", FieldChildrenCount: 2}, f.Values())
}

func TestSummaryFollowsFieldOrder(t *testing.T) {
	p := &Profile{Fields: Fields{ChildrenCount: intPtr(2), AgeRange: strPtr("25-34")}}
	assert.Equal(t, "User profile - age range: 25-34; children: 2.", p.Summary())
}

func TestMemoryStoreUpsertAndAccounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Upsert(ctx, "u1", map[string]any{FieldAgeRange: "25-34", CompletionKey: true, "bogus": 1}))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "25-34", *got.Fields.AgeRange)
	assert.True(t, got.Complete)

	acct, err := store.LinkAccount(ctx, Account{UserID: "u1", Provider: "plaid", Name: "Checking", Mask: "1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)

	count, err := store.AccountCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrUserRequired)
}
