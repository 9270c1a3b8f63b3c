package protocol

import "time"

// Version is the only protocol version this build speaks.
const Version = 1

// Request is the envelope sent to an external processor on stdin.
type Request struct {
	Protocol   int            `json:"protocol"`
	UnitID     string         `json:"unit_id"`
	Inputs     []string       `json:"inputs"`
	OutputDir  string         `json:"output_dir"`
	Config     map[string]any `json:"config,omitempty"`
	DeadlineAt *time.Time     `json:"deadline_at,omitempty"`
}

// Response is the envelope read back from the processor's stdout.
type Response struct {
	Status  string     `json:"status"` // ok | error
	Outputs []string   `json:"outputs,omitempty"`
	Error   string     `json:"error,omitempty"`
	Logs    []LogEntry `json:"logs,omitempty"`
}

// LogEntry is a log line forwarded by the processor.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OK reports whether the processor judged the work unit successful.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}
