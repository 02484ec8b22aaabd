package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/lvs-console/internal/backend"
	"github.com/raaihank/lvs-console/internal/hierarchy"
)

var testRules = []string{
	"Port Check",
	"Device Mismatch",
	"Device Size errors",
	"Net mismatch",
	"Open Circuit",
	"Short Circuit",
	"Latchup Error",
	"Well Shorts",
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func loadedState(t *testing.T) (*State, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := New(testRules, rec)
	s.SetGDS(&backend.GDSUpload{
		CellList: []string{"TOP", "ALU"},
		CellTree: []hierarchy.CellNode{
			{CellName: "TOP", Dependencies: []hierarchy.CellNode{{CellName: "ALU"}, {CellName: "inv"}}},
		},
		SavedPath: `uploads\chip.gds`,
	})
	s.SetCIR(&backend.CIRUpload{TopCell: "TOP", CellList: []string{"TOP", "inv"}, SavedPath: "uploads/chip.cir"})
	s.SetLVSCells([]string{"TOP", "inv", "ALU"})
	return s, rec
}

func TestSetGDSPublishesAndResets(t *testing.T) {
	s, rec := loadedState(t)
	require.NoError(t, s.SelectCells([]string{"inv"}))
	require.NoError(t, s.SelectRules([]string{"Open Circuit"}))

	rec.events = nil
	s.SetGDS(&backend.GDSUpload{CellList: []string{"NEW"}, SavedPath: "new.gds"})

	assert.Equal(t, []string{EventReset, EventGDSCells, EventPairChanged}, rec.names())
	snap := s.Snapshot()
	assert.Equal(t, "new.gds", snap.GDSName)
	assert.Equal(t, "chip.cir", snap.CIRName)
	assert.Empty(t, snap.SelectedCells)
	assert.Empty(t, snap.SelectedRules)
	assert.Empty(t, snap.LVSCells)
}

func TestRunGuard(t *testing.T) {
	s, _ := loadedState(t)

	_, err := s.RunRequest()
	var ge *GuardError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, GuardBoth, ge.Mode)

	require.NoError(t, s.SelectCells([]string{"inv"}))
	_, err = s.RunRequest()
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, GuardRules, ge.Mode)

	require.NoError(t, s.SelectCells(nil))
	require.NoError(t, s.SelectRules([]string{"Port Check"}))
	_, err = s.RunRequest()
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, GuardCells, ge.Mode)
}

func TestRunRequest(t *testing.T) {
	s, _ := loadedState(t)
	require.NoError(t, s.SelectCells([]string{"inv", "TOP"}))
	require.NoError(t, s.SelectRules([]string{"Well Shorts", "Port Check"}))

	req, err := s.RunRequest()
	require.NoError(t, err)
	assert.Equal(t, []string{"inv", "TOP"}, req.SelectedCells)
	assert.Equal(t, []bool{true, false, false, false, false, false, false, true}, req.Checks)
	assert.Equal(t, "chip.cir", req.Netlist)
	assert.Equal(t, "chip.gds", req.Layout)
}

func TestChecksPadded(t *testing.T) {
	s := New([]string{"Port Check", "Open Circuit"}, nil)
	require.NoError(t, s.ToggleRule("Open Circuit"))

	assert.Equal(t, []bool{false, true, false, false, false, false, false, false}, s.Checks())
}

func TestSelectionRejectsUnknownNames(t *testing.T) {
	s, _ := loadedState(t)

	var ue *UnknownNamesError
	require.True(t, errors.As(s.SelectCells([]string{"inv", "nand2"}), &ue))
	assert.Equal(t, []string{"nand2"}, ue.Names)

	require.True(t, errors.As(s.SelectRules([]string{"Antenna"}), &ue))
	assert.Equal(t, "rules", ue.Kind)

	assert.Error(t, s.ToggleRule("Antenna"))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	s, _ := loadedState(t)
	rules := []string{"Open Circuit"}
	cells := []string{"missing"}

	assert.Error(t, s.Apply(Update{SelectedRules: &rules, SelectedCells: &cells}))
	assert.Empty(t, s.Snapshot().SelectedRules)

	cells = []string{"ALU"}
	require.NoError(t, s.Apply(Update{SelectedRules: &rules, SelectedCells: &cells}))
	snap := s.Snapshot()
	assert.Equal(t, []string{"Open Circuit"}, snap.SelectedRules)
	assert.Equal(t, []string{"ALU"}, snap.SelectedCells)
}

func TestSelectAllCellsTogglesFilteredView(t *testing.T) {
	s, _ := loadedState(t)
	require.NoError(t, s.SelectCells([]string{"ALU"}))

	s.SelectAllCells("t")
	assert.Equal(t, []string{"ALU", "TOP"}, s.Snapshot().SelectedCells)

	s.SelectAllCells("T")
	assert.Equal(t, []string{"ALU"}, s.Snapshot().SelectedCells)

	s.SelectAllCells("")
	assert.Equal(t, []string{"ALU", "TOP", "inv"}, s.Snapshot().SelectedCells)

	s.SelectAllCells("")
	assert.Empty(t, s.Snapshot().SelectedCells)

	s.SelectAllCells("u ")
	assert.Empty(t, s.Snapshot().SelectedCells, "whitespace is part of the filter")
}

func TestToggleAllRules(t *testing.T) {
	s := New(testRules, nil)
	require.NoError(t, s.ToggleRule("Port Check"))

	s.ToggleAllRules()
	assert.Equal(t, testRules, s.Snapshot().SelectedRules)

	s.ToggleAllRules()
	assert.Empty(t, s.Snapshot().SelectedRules)
}

func TestTextNamesCheckHierarchyCells(t *testing.T) {
	s, rec := loadedState(t)
	rec.events = nil

	s.SetTextNames([]string{"inv", "ghost", "inv", "TOP"})

	snap := s.Snapshot()
	assert.Equal(t, []string{"inv", "ghost", "TOP"}, snap.TextNames)
	assert.Equal(t, []string{"inv", "TOP"}, snap.CheckedCells)
	assert.Equal(t, []string{EventTextUploaded, EventCellsChanged}, rec.names())

	scan := s.HierarchyScan()
	assert.Equal(t, []string{"TOP", "ALU", "inv"}, scan.Present)
	assert.Equal(t, []string{"ghost"}, scan.Absent)
	assert.Equal(t, 4, scan.Total)

	s.ToggleChecked("inv")
	assert.Equal(t, []string{"TOP"}, s.Snapshot().CheckedCells)
}

func TestSetLVSCellsDropsStaleSelection(t *testing.T) {
	s, _ := loadedState(t)
	require.NoError(t, s.SelectCells([]string{"inv", "ALU"}))

	s.SetLVSCells([]string{"ALU"})
	assert.Equal(t, []string{"ALU"}, s.Snapshot().SelectedCells)
}

func TestSetScan(t *testing.T) {
	s, rec := loadedState(t)
	rec.events = nil

	require.NoError(t, s.SetScan(ScanGDS, map[string]any{"layers": []int{1}}))
	assert.JSONEq(t, `{"layers":[1]}`, string(s.Snapshot().GDSScan))
	assert.Equal(t, []string{EventGDSScanned}, rec.names())

	assert.Error(t, s.SetScan("oas", nil))
}

type slowSource struct {
	calls chan struct{}
}

func (s slowSource) LVSCells(ctx context.Context, cirName, gdsName string) (*backend.LVSCellList, error) {
	s.calls <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return &backend.LVSCellList{LVSCells: []string{"stale"}}, nil
	}
}

type fixedSource []string

func (f fixedSource) LVSCells(ctx context.Context, cirName, gdsName string) (*backend.LVSCellList, error) {
	return &backend.LVSCellList{LVSCells: f}, nil
}

func TestRefreshLVSCellsSupersedesOlderFetch(t *testing.T) {
	s, _ := loadedState(t)
	slow := slowSource{calls: make(chan struct{}, 1)}

	errc := make(chan error, 1)
	go func() {
		_, err := s.RefreshLVSCells(context.Background(), slow)
		errc <- err
	}()
	<-slow.calls

	cells, err := s.RefreshLVSCells(context.Background(), fixedSource{"inv", "TOP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"inv", "TOP"}, cells)

	assert.ErrorIs(t, <-errc, backend.ErrSuperseded)
	assert.Equal(t, []string{"inv", "TOP"}, s.LVSCells())
}
