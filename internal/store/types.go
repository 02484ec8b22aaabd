package store

import (
	"time"

	"github.com/lib/pq"
)

// Run is one LVS run as recorded in lvs_runs
type Run struct {
	ID         int64          `db:"id" json:"id"`
	RunID      string         `db:"run_id" json:"run_id"`
	Layout     string         `db:"layout" json:"layout"`
	Netlist    string         `db:"netlist" json:"netlist"`
	Cells      pq.StringArray `db:"cells" json:"cells"`
	Checks     pq.BoolArray   `db:"checks" json:"checks"`
	Status     string         `db:"status" json:"status"`
	Error      string         `db:"error" json:"error,omitempty"`
	ReportName string         `db:"report_name" json:"report_name,omitempty"`
	ReportSize int64          `db:"report_size" json:"report_size"`
	Violations int64          `db:"violations" json:"violations"`
	DurationMS int64          `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Run statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}
