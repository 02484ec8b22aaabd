package session

import (
	"encoding/json"
	"fmt"

	"github.com/raaihank/lvs-console/internal/hierarchy"
)

// CheckSlots is the length of the checks array the LVS runner expects
const CheckSlots = 8

// Guard modes reported when a run is refused
const (
	GuardBoth  = "both"
	GuardRules = "rules"
	GuardCells = "cells"
)

// GuardError is returned when a run is requested before rules and cells
// have been picked.
type GuardError struct {
	Mode string `json:"mode"`
}

func (e *GuardError) Error() string {
	switch e.Mode {
	case GuardRules:
		return "no rules selected"
	case GuardCells:
		return "no cells selected"
	default:
		return "no rules or cells selected"
	}
}

func guardMode(missingRules, missingCells bool) string {
	switch {
	case missingRules && missingCells:
		return GuardBoth
	case missingRules:
		return GuardRules
	default:
		return GuardCells
	}
}

// Snapshot is a point-in-time copy of the session
type Snapshot struct {
	GDSName       string               `json:"gdsName"`
	CIRName       string               `json:"cirName"`
	TopCell       string               `json:"topCell,omitempty"`
	Unit          float64              `json:"unit,omitempty"`
	Precision     float64              `json:"precision,omitempty"`
	GDSCells      []string             `json:"gdsCells"`
	GDSTree       []hierarchy.CellNode `json:"gdsTree"`
	CIRCells      []string             `json:"cirCells"`
	LVSCells      []string             `json:"lvsCells"`
	TextNames     []string             `json:"textNames"`
	CheckedCells  []string             `json:"checkedCells"`
	SelectedCells []string             `json:"selectedCells"`
	Rules         []string             `json:"rules"`
	SelectedRules []string             `json:"selectedRules"`
	Checks        []bool               `json:"checks"`
	GDSScan       json.RawMessage      `json:"gdsScan,omitempty"`
	CIRScan       json.RawMessage      `json:"cirScan,omitempty"`
}

// Snapshot copies the session for rendering
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		GDSName:       s.gdsName,
		CIRName:       s.cirName,
		TopCell:       s.topCell,
		Unit:          s.unit,
		Precision:     s.precision,
		GDSCells:      append([]string{}, s.gdsCells...),
		GDSTree:       append([]hierarchy.CellNode{}, s.gdsTree...),
		CIRCells:      append([]string{}, s.cirCells...),
		LVSCells:      append([]string{}, s.lvsCells...),
		TextNames:     append([]string{}, s.textNames...),
		CheckedCells:  append([]string{}, s.checked...),
		SelectedCells: append([]string{}, s.selectedCells...),
		Rules:         append([]string{}, s.rules...),
		SelectedRules: s.selectedRulesLocked(),
		Checks:        s.checksLocked(),
		GDSScan:       append(json.RawMessage(nil), s.gdsScan...),
		CIRScan:       append(json.RawMessage(nil), s.cirScan...),
	}
}

// Update is a partial selection change; nil fields are left alone
type Update struct {
	SelectedCells *[]string `json:"selectedCells,omitempty"`
	SelectedRules *[]string `json:"selectedRules,omitempty"`
}

// Apply applies u, rules first. Nothing is changed when either list is invalid.
func (s *State) Apply(u Update) error {
	if u.SelectedRules != nil {
		if unknown := hierarchy.Diff(s.rules, *u.SelectedRules).Absent; len(unknown) > 0 {
			return &UnknownNamesError{Kind: "rules", Names: unknown}
		}
	}
	if u.SelectedCells != nil {
		lvs := s.LVSCells()
		if len(lvs) > 0 {
			if unknown := hierarchy.Diff(lvs, *u.SelectedCells).Absent; len(unknown) > 0 {
				return &UnknownNamesError{Kind: "cells", Names: unknown}
			}
		}
	}

	if u.SelectedRules != nil {
		if err := s.SelectRules(*u.SelectedRules); err != nil {
			return fmt.Errorf("failed to select rules: %w", err)
		}
	}
	if u.SelectedCells != nil {
		if err := s.SelectCells(*u.SelectedCells); err != nil {
			return fmt.Errorf("failed to select cells: %w", err)
		}
	}
	return nil
}
