// Package session holds the console's working state: the uploaded layout and
// netlist, their cell lists, and the cells and rules picked for the next LVS
// run. Every change is published so connected browsers stay in sync.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/raaihank/lvs-console/internal/backend"
	"github.com/raaihank/lvs-console/internal/hierarchy"
)

// Event names published on state changes
const (
	EventGDSCells     = "gds:cells"
	EventGDSScanned   = "gds:scanned"
	EventCIRCells     = "cir:cells"
	EventCIRScanned   = "cir:scanned"
	EventTextUploaded = "cells:txtUploaded"
	EventCellsChanged = "cells:changed"
	EventRulesChanged = "rules:changed"
	EventReset        = "lvs:reset"
	EventPairChanged  = "lvs:pairChanged"
	EventRun          = "lvs:run"
)

// Publisher receives state change notifications
type Publisher interface {
	Publish(eventType string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// LVSCellSource fetches the cells common to a netlist and a layout
type LVSCellSource interface {
	LVSCells(ctx context.Context, cirName, gdsName string) (*backend.LVSCellList, error)
}

// State is the mutable session. It is safe for concurrent use.
type State struct {
	mu  sync.RWMutex
	pub Publisher

	// catalogue order is the order of the checks array
	rules []string

	gdsName   string
	gdsCells  []string
	gdsTree   []hierarchy.CellNode
	unit      float64
	precision float64
	cirName   string
	topCell   string
	cirCells  []string
	lvsCells  []string
	textNames []string

	checked       []string
	selectedCells []string
	selectedRules map[string]bool

	gdsScan json.RawMessage
	cirScan json.RawMessage

	refetch backend.Refetcher
}

// New creates an empty session over the given rule catalogue
func New(rules []string, pub Publisher) *State {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &State{
		pub:           pub,
		rules:         append([]string(nil), rules...),
		selectedRules: make(map[string]bool),
	}
}

// Rules returns the rule catalogue
func (s *State) Rules() []string {
	return append([]string(nil), s.rules...)
}

// resetLocked drops every selection tied to the previous file pair
func (s *State) resetLocked() {
	s.lvsCells = nil
	s.selectedCells = nil
	s.selectedRules = make(map[string]bool)
}

// SetGDS records a new layout upload and clears the run selection
func (s *State) SetGDS(up *backend.GDSUpload) {
	s.mu.Lock()
	s.resetLocked()
	s.gdsName = backend.BaseName(up.SavedPath)
	s.gdsCells = hierarchy.Unique(up.CellList)
	s.gdsTree = up.CellTree
	s.unit = up.Unit
	s.precision = up.Precision
	s.gdsScan = nil
	s.checked = nil
	gds, cir := s.gdsName, s.cirName
	cells, tree := s.gdsCells, s.gdsTree
	s.mu.Unlock()

	s.pub.Publish(EventReset, map[string]string{"reason": "gdsChanged"})
	s.pub.Publish(EventGDSCells, map[string]any{
		"gdsName":  gds,
		"cellList": cells,
		"cellTree": tree,
	})
	s.pub.Publish(EventPairChanged, pair{CIRName: cir, GDSName: gds})
}

// SetCIR records a new netlist upload and clears the run selection
func (s *State) SetCIR(up *backend.CIRUpload) {
	s.mu.Lock()
	s.resetLocked()
	s.cirName = backend.BaseName(up.SavedPath)
	s.topCell = up.TopCell
	s.cirCells = hierarchy.Unique(up.CellList)
	s.cirScan = nil
	gds, cir := s.gdsName, s.cirName
	cells, top := s.cirCells, s.topCell
	s.mu.Unlock()

	s.pub.Publish(EventReset, map[string]string{"reason": "cirChanged"})
	s.pub.Publish(EventCIRCells, map[string]any{
		"cirName":  cir,
		"topCell":  top,
		"cellList": cells,
	})
	s.pub.Publish(EventPairChanged, pair{CIRName: cir, GDSName: gds})
}

type pair struct {
	CIRName string `json:"cirName"`
	GDSName string `json:"gdsName"`
}

// ScanKind names which file a scan payload belongs to
type ScanKind string

const (
	ScanGDS ScanKind = "gds"
	ScanCIR ScanKind = "cir"
)

// SetScan stores the raw scan payload of the layout or netlist
func (s *State) SetScan(kind ScanKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s scan: %w", kind, err)
	}

	var event string
	s.mu.Lock()
	switch kind {
	case ScanGDS:
		s.gdsScan = raw
		event = EventGDSScanned
	case ScanCIR:
		s.cirScan = raw
		event = EventCIRScanned
	default:
		s.mu.Unlock()
		return fmt.Errorf("unknown scan kind %q", kind)
	}
	s.mu.Unlock()

	s.pub.Publish(event, json.RawMessage(raw))
	return nil
}

// Pair returns the current netlist and layout file names
func (s *State) Pair() (cirName, gdsName string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cirName, s.gdsName
}

// ScanSettings returns the unit and precision reported by the last layout upload
func (s *State) ScanSettings() (unit, precision float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unit, s.precision
}

// SetLVSCells replaces the LVS cell list. Selected cells that are no longer
// listed are dropped.
func (s *State) SetLVSCells(cells []string) {
	s.mu.Lock()
	s.lvsCells = hierarchy.Unique(cells)
	s.selectedCells = hierarchy.Intersect(s.lvsCells, s.selectedCells)
	changed := s.cellsChangedLocked()
	s.mu.Unlock()

	s.pub.Publish(EventCellsChanged, changed)
}

// RefreshLVSCells fetches the LVS cell list for the current pair. A refresh
// started while another is in flight cancels the older one, which then
// returns backend.ErrSuperseded.
func (s *State) RefreshLVSCells(ctx context.Context, src LVSCellSource) ([]string, error) {
	cir, gds := s.Pair()

	var list *backend.LVSCellList
	err := s.refetch.Do(ctx, func(ctx context.Context) error {
		var err error
		list, err = src.LVSCells(ctx, cir, gds)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.SetLVSCells(list.LVSCells)
	return s.LVSCells(), nil
}

// LVSCells returns the LVS cell list
func (s *State) LVSCells() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.lvsCells...)
}

// HierarchyNames returns every cell of the layout hierarchy
func (s *State) HierarchyNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hierarchy.Flatten(s.gdsCells, s.gdsTree)
}

// SetTextNames stores an uploaded cell name list and checks the layout cells
// it names. An empty list clears the checked cells.
func (s *State) SetTextNames(names []string) {
	names = hierarchy.Unique(names)

	s.mu.Lock()
	s.textNames = names
	s.checked = hierarchy.Intersect(hierarchy.Flatten(s.gdsCells, s.gdsTree), names)
	changed := s.cellsChangedLocked()
	s.mu.Unlock()

	s.pub.Publish(EventTextUploaded, map[string]any{"names": names})
	s.pub.Publish(EventCellsChanged, changed)
}

// ToggleChecked flips one layout cell in the checked set
func (s *State) ToggleChecked(name string) {
	s.mu.Lock()
	s.checked = toggle(s.checked, name)
	changed := s.cellsChangedLocked()
	s.mu.Unlock()

	s.pub.Publish(EventCellsChanged, changed)
}

// HierarchyScan compares the layout hierarchy with the uploaded name list
func (s *State) HierarchyScan() hierarchy.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hierarchy.Diff(hierarchy.Flatten(s.gdsCells, s.gdsTree), s.textNames)
}

// UnknownNamesError lists names that are not valid choices
type UnknownNamesError struct {
	Kind  string
	Names []string
}

func (e *UnknownNamesError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, strings.Join(e.Names, ", "))
}

// SelectCells replaces the LVS cell selection. Once an LVS cell list is
// loaded, names outside it are rejected.
func (s *State) SelectCells(names []string) error {
	names = hierarchy.Unique(names)

	s.mu.Lock()
	if len(s.lvsCells) > 0 {
		if unknown := hierarchy.Diff(s.lvsCells, names).Absent; len(unknown) > 0 {
			s.mu.Unlock()
			return &UnknownNamesError{Kind: "cells", Names: unknown}
		}
	}
	s.selectedCells = names
	changed := s.cellsChangedLocked()
	s.mu.Unlock()

	s.pub.Publish(EventCellsChanged, changed)
	return nil
}

// ToggleCell flips one LVS cell in the selection
func (s *State) ToggleCell(name string) {
	s.mu.Lock()
	s.selectedCells = toggle(s.selectedCells, name)
	changed := s.cellsChangedLocked()
	s.mu.Unlock()

	s.pub.Publish(EventCellsChanged, changed)
}

// SelectAllCells acts like the "Select All" box over the cells matching
// filter: when all of them are selected they are deselected, otherwise they
// are all selected. Cells outside the filter keep their state.
func (s *State) SelectAllCells(filter string) {
	q := strings.ToLower(filter)

	s.mu.Lock()
	var visible []string
	for _, c := range s.lvsCells {
		if q == "" || strings.Contains(strings.ToLower(c), q) {
			visible = append(visible, c)
		}
	}

	selected := make(map[string]bool, len(s.selectedCells))
	for _, c := range s.selectedCells {
		selected[c] = true
	}
	allSelected := len(visible) > 0
	for _, c := range visible {
		if !selected[c] {
			allSelected = false
			break
		}
	}

	if allSelected {
		s.selectedCells = hierarchy.Diff(visible, s.selectedCells).Absent
	} else {
		s.selectedCells = hierarchy.Unique(append(s.selectedCells, visible...))
	}
	changed := s.cellsChangedLocked()
	s.mu.Unlock()

	s.pub.Publish(EventCellsChanged, changed)
}

// SelectRules replaces the rule selection; names must be in the catalogue
func (s *State) SelectRules(names []string) error {
	if unknown := hierarchy.Diff(s.rules, names).Absent; len(unknown) > 0 {
		return &UnknownNamesError{Kind: "rules", Names: unknown}
	}

	s.mu.Lock()
	s.selectedRules = make(map[string]bool, len(names))
	for _, n := range names {
		s.selectedRules[n] = true
	}
	rules := s.selectedRulesLocked()
	s.mu.Unlock()

	s.pub.Publish(EventRulesChanged, map[string]any{"selected": rules})
	return nil
}

// ToggleRule flips one rule in the selection
func (s *State) ToggleRule(name string) error {
	if len(hierarchy.Intersect(s.rules, []string{name})) == 0 {
		return &UnknownNamesError{Kind: "rules", Names: []string{name}}
	}

	s.mu.Lock()
	if s.selectedRules[name] {
		delete(s.selectedRules, name)
	} else {
		s.selectedRules[name] = true
	}
	rules := s.selectedRulesLocked()
	s.mu.Unlock()

	s.pub.Publish(EventRulesChanged, map[string]any{"selected": rules})
	return nil
}

// ToggleAllRules selects every rule, or clears the selection when every rule
// is already selected.
func (s *State) ToggleAllRules() {
	s.mu.Lock()
	if len(s.selectedRulesLocked()) == len(s.rules) {
		s.selectedRules = make(map[string]bool)
	} else {
		for _, r := range s.rules {
			s.selectedRules[r] = true
		}
	}
	rules := s.selectedRulesLocked()
	s.mu.Unlock()

	s.pub.Publish(EventRulesChanged, map[string]any{"selected": rules})
}

// Checks returns the run's checks array: one flag per catalogue slot in
// catalogue order, padded with false up to the backend's eight slots.
func (s *State) Checks() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checksLocked()
}

func (s *State) checksLocked() []bool {
	n := len(s.rules)
	if n < CheckSlots {
		n = CheckSlots
	}
	checks := make([]bool, n)
	for i, r := range s.rules {
		checks[i] = s.selectedRules[r]
	}
	return checks
}

// RunRequest builds the backend run body, or a *GuardError when no rules or
// no cells are selected.
func (s *State) RunRequest() (backend.RunRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	missingRules := len(s.selectedRulesLocked()) == 0
	missingCells := len(s.selectedCells) == 0
	if missingRules || missingCells {
		return backend.RunRequest{}, &GuardError{Mode: guardMode(missingRules, missingCells)}
	}

	return backend.RunRequest{
		SelectedCells: append([]string(nil), s.selectedCells...),
		Checks:        s.checksLocked(),
		Netlist:       s.cirName,
		Layout:        s.gdsName,
	}, nil
}

// selectedRulesLocked returns selected rules in catalogue order
func (s *State) selectedRulesLocked() []string {
	out := []string{}
	for _, r := range s.rules {
		if s.selectedRules[r] {
			out = append(out, r)
		}
	}
	return out
}

type cellsChanged struct {
	Checked  []string `json:"checked"`
	Selected []string `json:"selected"`
}

func (s *State) cellsChangedLocked() cellsChanged {
	return cellsChanged{
		Checked:  append([]string{}, s.checked...),
		Selected: append([]string{}, s.selectedCells...),
	}
}

// toggle adds name to set, or removes it when present, keeping order
func toggle(set []string, name string) []string {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, v := range set {
		if v == name {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, name)
	}
	return out
}
