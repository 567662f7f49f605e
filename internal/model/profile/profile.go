package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Demographic field keys collected during onboarding.
const (
	FieldAgeRange                   = "age_range"
	FieldLifeStage                  = "life_stage"
	FieldOccupationType             = "occupation_type"
	FieldLocationContext            = "location_context"
	FieldFamilyStructure            = "family_structure"
	FieldMaritalStatus              = "marital_status"
	FieldTotalDependentsCount       = "total_dependents_count"
	FieldChildrenCount              = "children_count"
	FieldCaregivingResponsibilities = "caregiving_responsibilities"

	// CompletionKey is the upsert key for the persisted completion flag.
	CompletionKey = "profile_complete"
)

// FieldNames lists the demographic fields in summary order.
var FieldNames = []string{
	FieldAgeRange,
	FieldLifeStage,
	FieldOccupationType,
	FieldLocationContext,
	FieldFamilyStructure,
	FieldMaritalStatus,
	FieldTotalDependentsCount,
	FieldChildrenCount,
	FieldCaregivingResponsibilities,
}

var fieldLabels = map[string]string{
	FieldAgeRange:                   "age range",
	FieldLifeStage:                  "life stage",
	FieldOccupationType:             "occupation",
	FieldLocationContext:            "location",
	FieldFamilyStructure:            "family structure",
	FieldMaritalStatus:              "marital status",
	FieldTotalDependentsCount:       "dependents",
	FieldChildrenCount:              "children",
	FieldCaregivingResponsibilities: "caregiving",
}

// IsField reports whether name is one of the demographic fields.
func IsField(name string) bool {
	_, ok := fieldLabels[name]
	return ok
}

// FieldLabel returns the user-facing name of a field.
func FieldLabel(name string) string {
	if label, ok := fieldLabels[name]; ok {
		return label
	}
	return name
}

// Fields holds the nine onboarding fields. Nil means not collected.
type Fields struct {
	AgeRange                   *string `json:"age_range,omitempty"`
	LifeStage                  *string `json:"life_stage,omitempty"`
	OccupationType             *string `json:"occupation_type,omitempty"`
	LocationContext            *string `json:"location_context,omitempty"`
	FamilyStructure            *string `json:"family_structure,omitempty"`
	MaritalStatus              *string `json:"marital_status,omitempty"`
	TotalDependentsCount       *int    `json:"total_dependents_count,omitempty"`
	ChildrenCount              *int    `json:"children_count,omitempty"`
	CaregivingResponsibilities *string `json:"caregiving_responsibilities,omitempty"`
}

func (f *Fields) stringField(name string) **string {
	switch name {
	case FieldAgeRange:
		return &f.AgeRange
	case FieldLifeStage:
		return &f.LifeStage
	case FieldOccupationType:
		return &f.OccupationType
	case FieldLocationContext:
		return &f.LocationContext
	case FieldFamilyStructure:
		return &f.FamilyStructure
	case FieldMaritalStatus:
		return &f.MaritalStatus
	case FieldCaregivingResponsibilities:
		return &f.CaregivingResponsibilities
	}
	return nil
}

func (f *Fields) intField(name string) **int {
	switch name {
	case FieldTotalDependentsCount:
		return &f.TotalDependentsCount
	case FieldChildrenCount:
		return &f.ChildrenCount
	}
	return nil
}

// Get returns the value of a field and whether it is set.
func (f Fields) Get(name string) (any, bool) {
	if p := f.stringField(name); p != nil {
		if *p == nil {
			return nil, false
		}
		return **p, true
	}
	if p := f.intField(name); p != nil {
		if *p == nil {
			return nil, false
		}
		return **p, true
	}
	return nil, false
}

// Set assigns a field from a loosely typed value. Unknown names and
// values that cannot be coerced are ignored and reported as false.
func (f *Fields) Set(name string, value any) bool {
	if value == nil {
		return false
	}
	if p := f.stringField(name); p != nil {
		s, ok := coerceString(value)
		if !ok {
			return false
		}
		*p = &s
		return true
	}
	if p := f.intField(name); p != nil {
		n, ok := coerceInt(value)
		if !ok {
			return false
		}
		*p = &n
		return true
	}
	return false
}

// Merge copies every set field of other into f, last write wins, and
// returns the names whose value changed.
func (f *Fields) Merge(other Fields) []string {
	var changed []string
	for _, name := range FieldNames {
		incoming, ok := other.Get(name)
		if !ok {
			continue
		}
		current, had := f.Get(name)
		if had && current == incoming {
			continue
		}
		f.Set(name, incoming)
		changed = append(changed, name)
	}
	return changed
}

// Missing lists the fields that are still nil.
func (f Fields) Missing() []string {
	var missing []string
	for _, name := range FieldNames {
		if _, ok := f.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsEmpty reports whether no field is set.
func (f Fields) IsEmpty() bool {
	return len(f.Missing()) == len(FieldNames)
}

// Values returns the set fields keyed by name.
func (f Fields) Values() map[string]any {
	values := make(map[string]any, len(FieldNames))
	for _, name := range FieldNames {
		if v, ok := f.Get(name); ok {
			values[name] = v
		}
	}
	return values
}

// FieldsFromMap builds Fields from a map, dropping unknown keys.
func FieldsFromMap(values map[string]any) Fields {
	var f Fields
	for name, value := range values {
		f.Set(name, value)
	}
	return f
}

// Profile is the persisted onboarding record of one user.
type Profile struct {
	UserID    string    `json:"userId"`
	Fields    Fields    `json:"fields"`
	Complete  bool      `json:"complete"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasAllFields reports whether all nine demographic fields are set.
func (p *Profile) HasAllFields() bool {
	return p != nil && len(p.Fields.Missing()) == 0
}

// IsComplete applies the completion rule: every field set and at least one
// linked account.
func IsComplete(p *Profile, accountCount int) bool {
	return p.HasAllFields() && accountCount >= 1
}

// Summary joins the set fields in fixed order into one sentence.
func (p *Profile) Summary() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(FieldNames))
	for _, name := range FieldNames {
		v, ok := p.Fields.Get(name)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", fieldLabels[name], v))
	}
	if len(parts) == 0 {
		return ""
	}
	return "User profile - " + strings.Join(parts, "; ") + "."
}

// Account is a linked financial account.
type Account struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	Provider string    `json:"provider"`
	Name     string    `json:"name"`
	Mask     string    `json:"mask,omitempty"`
	LinkedAt time.Time `json:"linkedAt"`
}

// Label renders an account for user-facing text.
func (a Account) Label() string {
	label := strings.TrimSpace(a.Name)
	if label == "" {
		label = a.Provider
	}
	if a.Mask != "" {
		label += " ••" + a.Mask
	}
	return label
}

func coerceString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return "", false
		}
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return coerceString(*v)
	case fmt.Stringer:
		return coerceString(v.String())
	}
	return "", false
}

func coerceInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, v >= 0
	case *int:
		if v == nil {
			return 0, false
		}
		return *v, *v >= 0
	case int64:
		return int(v), v >= 0
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
