// Package counter provides domain contracts for document sequence numbering:
// counter definitions (templates), the pure period/scope/format functions and
// the store interfaces implemented by the infrastructure layer.
package counter

import (
	"fmt"
	"strings"

	"erpcounter/internal/core/apperror"
)

// MaxComponents is the maximum number of components a definition may hold.
const MaxComponents = 10

// ComponentType identifies how a template component is rendered.
// Numeric values are the persisted codes.
type ComponentType int

const (
	// ComponentNone terminates the component list early. It is a sentinel, not a real type.
	ComponentNone ComponentType = iota
	ComponentConstant
	ComponentYear
	ComponentMonth
	ComponentWeek
	ComponentDay
	ComponentCompany
	ComponentSite
	ComponentSequenceNumber
	ComponentComplement
	ComponentFiscalYear
	ComponentPeriod
	ComponentFormula
	// ComponentNoComplement renders nothing and forces the complement to "".
	ComponentNoComplement
)

var componentTypeNames = map[ComponentType]string{
	ComponentNone:           "NONE",
	ComponentConstant:       "CONSTANT",
	ComponentYear:           "YEAR",
	ComponentMonth:          "MONTH",
	ComponentWeek:           "WEEK",
	ComponentDay:            "DAY",
	ComponentCompany:        "COMPANY",
	ComponentSite:           "SITE",
	ComponentSequenceNumber: "SEQUENCE_NUMBER",
	ComponentComplement:     "COMPLEMENT",
	ComponentFiscalYear:     "FISCAL_YEAR",
	ComponentPeriod:         "PERIOD",
	ComponentFormula:        "FORMULA",
	ComponentNoComplement:   "NO_COMPLEMENT",
}

func (t ComponentType) String() string {
	if name, ok := componentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ComponentType(%d)", int(t))
}

// Valid reports whether t is a known code (including the sentinel).
func (t ComponentType) Valid() bool {
	_, ok := componentTypeNames[t]
	return ok
}

// ParseComponentType parses a component type by name (case-insensitive).
func ParseComponentType(s string) (ComponentType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range componentTypeNames {
		if n == name {
			return t, nil
		}
	}
	return ComponentNone, fmt.Errorf("unknown component type %q", s)
}

// ResetPolicy defines how often a counter restarts.
type ResetPolicy int

const (
	ResetNever      ResetPolicy = 0
	ResetAnnual     ResetPolicy = 1
	ResetMonthly    ResetPolicy = 2
	ResetFiscalYear ResetPolicy = 3
	ResetPeriod     ResetPolicy = 4
	// ResetDecade is the legacy mode keyed by the last digit of the year.
	ResetDecade ResetPolicy = 99
)

var resetPolicyNames = map[ResetPolicy]string{
	ResetNever:      "NEVER",
	ResetAnnual:     "ANNUAL",
	ResetMonthly:    "MONTHLY",
	ResetFiscalYear: "FISCAL_YEAR",
	ResetPeriod:     "PERIOD",
	ResetDecade:     "DECADE",
}

func (p ResetPolicy) String() string {
	if name, ok := resetPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ResetPolicy(%d)", int(p))
}

// ParseResetPolicy parses a reset policy by name (case-insensitive).
func ParseResetPolicy(s string) (ResetPolicy, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for p, n := range resetPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return ResetNever, fmt.Errorf("unknown reset policy %q", s)
}

// DefinitionLevel determines how the scope key of a counter is derived.
type DefinitionLevel int

const (
	LevelFolder  DefinitionLevel = 1
	LevelCompany DefinitionLevel = 2
	LevelSite    DefinitionLevel = 3
)

var levelNames = map[DefinitionLevel]string{
	LevelFolder:  "FOLDER",
	LevelCompany: "COMPANY",
	LevelSite:    "SITE",
}

func (l DefinitionLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("DefinitionLevel(%d)", int(l))
}

// ParseDefinitionLevel parses a definition level by name (case-insensitive).
func ParseDefinitionLevel(s string) (DefinitionLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return LevelFolder, fmt.Errorf("unknown definition level %q", s)
}

// SequenceType tells whether the rendered number is re-normalized as an integer.
type SequenceType int

const (
	SequenceAlphanumeric SequenceType = 1
	SequenceNumeric      SequenceType = 2
)

func (t SequenceType) String() string {
	switch t {
	case SequenceAlphanumeric:
		return "ALPHANUMERIC"
	case SequenceNumeric:
		return "NUMERIC"
	default:
		return fmt.Sprintf("SequenceType(%d)", int(t))
	}
}

// ParseSequenceType parses a sequence type by name (case-insensitive).
func ParseSequenceType(s string) (SequenceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALPHANUMERIC":
		return SequenceAlphanumeric, nil
	case "NUMERIC":
		return SequenceNumeric, nil
	default:
		return SequenceAlphanumeric, fmt.Errorf("unknown sequence type %q", s)
	}
}

// ChronologicalPadded is the ChronologicalControl value that right-pads
// COMPANY/SITE components with '_' instead of truncating them.
const ChronologicalPadded = 2

// Component is a single template slot.
type Component struct {
	Type     ComponentType `json:"type"`
	Length   int           `json:"length"`
	Constant string        `json:"constant,omitempty"`
}

// Definition is the immutable template of a document counter.
type Definition struct {
	SequenceCode         string          `json:"sequence_code"`
	Description          string          `json:"description,omitempty"`
	Components           []Component     `json:"components"`
	NumberOfComponents   int             `json:"number_of_components"`
	ResetPolicy          ResetPolicy     `json:"reset_policy"`
	DefinitionLevel      DefinitionLevel `json:"definition_level"`
	SequenceType         SequenceType    `json:"sequence_type"`
	ChronologicalControl int             `json:"chronological_control"`
}

// SequenceIndex returns the index of the SEQUENCE_NUMBER component, or -1.
// All declared components are searched, not only the rendered ones.
func (d Definition) SequenceIndex() int {
	for i, c := range d.Components {
		if c.Type == ComponentSequenceNumber {
			return i
		}
	}
	return -1
}

// SuppressesComplement reports whether the template carries the NO_COMPLEMENT marker.
func (d Definition) SuppressesComplement() bool {
	for _, c := range d.Components {
		if c.Type == ComponentNoComplement {
			return true
		}
	}
	return false
}

// SequenceDigits returns the configured width of the SEQUENCE_NUMBER component
// (default 1), or 0 when the template has none.
func (d Definition) SequenceDigits() int {
	idx := d.SequenceIndex()
	if idx < 0 {
		return 0
	}
	if n := d.Components[idx].Length; n > 0 {
		return n
	}
	return 1
}

// Validate checks structural constraints enforced at load time.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.SequenceCode) == "" {
		return apperror.NewValidation("sequence code is required")
	}
	if len(d.Components) > MaxComponents {
		return apperror.NewValidation("too many components").
			WithDetail("sequence_code", d.SequenceCode).
			WithDetail("max", MaxComponents).
			WithDetail("got", len(d.Components))
	}
	if d.NumberOfComponents < 0 || d.NumberOfComponents > MaxComponents {
		return apperror.NewValidation("number of components out of range").
			WithDetail("sequence_code", d.SequenceCode).
			WithDetail("number_of_components", d.NumberOfComponents)
	}
	for i, c := range d.Components {
		if !c.Type.Valid() {
			return apperror.NewValidation("unknown component type").
				WithDetail("sequence_code", d.SequenceCode).
				WithDetail("position", i+1).
				WithDetail("type", int(c.Type))
		}
	}
	if _, ok := resetPolicyNames[d.ResetPolicy]; !ok {
		return apperror.NewValidation("unknown reset policy").
			WithDetail("sequence_code", d.SequenceCode).
			WithDetail("reset_policy", int(d.ResetPolicy))
	}
	if _, ok := levelNames[d.DefinitionLevel]; !ok {
		return apperror.NewValidation("unknown definition level").
			WithDetail("sequence_code", d.SequenceCode).
			WithDetail("definition_level", int(d.DefinitionLevel))
	}
	if d.SequenceType != SequenceAlphanumeric && d.SequenceType != SequenceNumeric {
		return apperror.NewValidation("unknown sequence type").
			WithDetail("sequence_code", d.SequenceCode).
			WithDetail("sequence_type", int(d.SequenceType))
	}
	return nil
}
