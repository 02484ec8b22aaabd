package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raaihank/lvs-console/internal/hierarchy"
)

// GDSUpload is the reply of /gds/get_cellnames
type GDSUpload struct {
	Status     string               `json:"status"`
	TotalCells int                  `json:"totalCells"`
	Unit       float64              `json:"unit"`
	Precision  float64              `json:"precision"`
	CellList   []string             `json:"cellList"`
	CellTree   []hierarchy.CellNode `json:"cellTree"`
	SavedPath  string               `json:"savedPath"`
}

// ScanRequest is the body of /gds/scan_gds
type ScanRequest struct {
	InpGds    string  `json:"inpGds"`
	Precision float64 `json:"precision"`
	Unit      float64 `json:"unit"`
	Type      string  `json:"type"` // layers, text_layers or both
}

// GDSScan is the reply of /gds/scan_gds. Layer payloads are passed through
// to the UI untouched.
type GDSScan struct {
	Layers     json.RawMessage `json:"layers,omitempty"`
	TextLayers json.RawMessage `json:"text_layers,omitempty"`
	Labels     json.RawMessage `json:"labels,omitempty"`
	Unit       float64         `json:"unit"`
	Precision  float64         `json:"precision"`
}

// CIRUpload is the reply of /cir/get_circells
type CIRUpload struct {
	Status        string          `json:"status,omitempty"`
	TopCell       string          `json:"topCell"`
	TotalCells    int             `json:"totalCells"`
	Pins          json.RawMessage `json:"pins,omitempty"`
	Instances     json.RawMessage `json:"instances,omitempty"`
	CellList      []string        `json:"cellList"`
	HierarchyTree json.RawMessage `json:"hierarchyTree,omitempty"`
	SavedPath     string          `json:"savedPath,omitempty"`
}

// CIRScan is the reply of /cir/scan_cir; same shape as the upload minus the path
type CIRScan = CIRUpload

// LVSCellList is the reply of /cell_list/lvs_celllist
type LVSCellList struct {
	Status        string   `json:"status"`
	TotalLVSCells int      `json:"totalLVSCells"`
	LVSCells      []string `json:"lvsCells"`
}

// RunRequest is the body of /lvs/lvs_runner
type RunRequest struct {
	SelectedCells []string `json:"selected_cells"`
	Checks        []bool   `json:"checks"`
	Netlist       string   `json:"netlist"`
	Layout        string   `json:"layout"`
}

// Report is the file returned by a successful LVS run
type Report struct {
	Filename    string
	ContentType string
	Body        []byte
}

// DefaultReportName is used when the backend sends no Content-Disposition
const DefaultReportName = "lvs_report.txt"

// Error is a non-2xx reply from the backend
type Error struct {
	Status       int
	Message      string
	MissingFiles []string
}

func (e *Error) Error() string {
	if len(e.MissingFiles) > 0 {
		return fmt.Sprintf("backend returned %d: %s (%s)", e.Status, e.Message, strings.Join(e.MissingFiles, ", "))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// errorBody covers both error shapes the backend uses
type errorBody struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	Error        string   `json:"error"`
	MissingFiles []string `json:"missingFiles"`
}

// BaseName returns the file name part of a backend savedPath, which may use
// either slash style.
func BaseName(savedPath string) string {
	if i := strings.LastIndexAny(savedPath, `/\`); i >= 0 {
		return savedPath[i+1:]
	}
	return savedPath
}
