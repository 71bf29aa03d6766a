package registry

import "time"

// Status of a managed application. Transitions are monotone: running may move
// to stopped (explicit stop) or unreachable (process vanished); stopped and
// unreachable are terminal.
type Status string

const (
	StatusRunning     Status = "running"
	StatusStopped     Status = "stopped"
	StatusUnreachable Status = "unreachable"
)

func (s Status) Terminal() bool { return s == StatusStopped || s == StatusUnreachable }

// Record is one managed application. Handle is unique for the lifetime of the
// registry and never reused; records are never deleted automatically, stopped
// rows are only filtered out of running-app queries by status.
type Record struct {
	Handle     string    `json:"handle"`
	PID        int       `json:"pid"`
	LaunchPath string    `json:"launch_path,omitempty"` // empty when attached
	LaunchArgs []string  `json:"launch_args,omitempty"`
	Attached   bool      `json:"attached"`
	StartedAt  time.Time `json:"started_at"`
	Status     Status    `json:"status"`

	// Best-effort caches; both may be stale and must be re-resolved on use.
	WindowRef    string `json:"window_ref,omitempty"`
	DevtoolsPort int    `json:"devtools_port,omitempty"`

	Sample    ResourceSample `json:"last_resource_sample"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ResourceSample is the most recent cpu/memory/disk snapshot for a record.
type ResourceSample struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryRSS      uint64    `json:"memory_rss"`
	MemoryVMS      uint64    `json:"memory_vms"`
	DiskReadBytes  uint64    `json:"disk_read_bytes"`
	DiskWriteBytes uint64    `json:"disk_write_bytes"`
	NumThreads     int32     `json:"num_threads"`
	Timestamp      time.Time `json:"timestamp"`
}

// Zero reports whether the record has never been sampled.
func (s ResourceSample) Zero() bool { return s.Timestamp.IsZero() }

// LogLine is one captured output line. Seq is monotone per handle and mirrors
// capture order exactly.
type LogLine struct {
	Seq        int64     `json:"seq"`
	Stream     string    `json:"stream"` // "stdout" or "stderr"
	Line       string    `json:"line"`
	CapturedAt time.Time `json:"captured_at"`
}
