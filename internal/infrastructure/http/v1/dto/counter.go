// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"erpcounter/internal/core/counter"
)

// Date is a reference date given as YYYY-MM-DD, the form counterctl takes,
// or as an RFC 3339 timestamp. Date-only values are midnight UTC.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("date %q is neither YYYY-MM-DD nor RFC 3339", raw)
}

// NextCounterRequest is the body of POST /counters/:code/next.
// All fields are optional; lengths follow the sequence_counters key columns.
type NextCounterRequest struct {
	Site          string `json:"site" binding:"max=64"`
	ReferenceDate *Date  `json:"reference_date"`
	Complement    string `json:"complement" binding:"max=128"`
}

// NextCounterResponse carries an issued document number.
type NextCounterResponse struct {
	SequenceCode string `json:"sequence_code"`
	Value        string `json:"value"`
	// Replayed is set when an idempotency key returned an earlier number.
	Replayed bool `json:"replayed,omitempty"`
}

// ComponentResponse is one template slot.
type ComponentResponse struct {
	Position int    `json:"position"`
	Type     string `json:"type"`
	Length   int    `json:"length"`
	Constant string `json:"constant,omitempty"`
}

// DefinitionResponse describes a counter definition.
type DefinitionResponse struct {
	SequenceCode         string              `json:"sequence_code"`
	Description          string              `json:"description,omitempty"`
	Components           []ComponentResponse `json:"components"`
	NumberOfComponents   int                 `json:"number_of_components"`
	ResetPolicy          string              `json:"reset_policy"`
	DefinitionLevel      string              `json:"definition_level"`
	SequenceType         string              `json:"sequence_type"`
	ChronologicalControl int                 `json:"chronological_control"`
}

// FromDefinition converts a definition for output.
func FromDefinition(def counter.Definition) DefinitionResponse {
	resp := DefinitionResponse{
		SequenceCode:         def.SequenceCode,
		Description:          def.Description,
		Components:           make([]ComponentResponse, 0, len(def.Components)),
		NumberOfComponents:   def.NumberOfComponents,
		ResetPolicy:          def.ResetPolicy.String(),
		DefinitionLevel:      def.DefinitionLevel.String(),
		SequenceType:         def.SequenceType.String(),
		ChronologicalControl: def.ChronologicalControl,
	}
	for i, c := range def.Components {
		resp.Components = append(resp.Components, ComponentResponse{
			Position: i + 1,
			Type:     c.Type.String(),
			Length:   c.Length,
			Constant: c.Constant,
		})
	}
	return resp
}
