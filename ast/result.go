package ast

// Tier identifies which decoding strategy produced a parse result.
type Tier string

const (
	TierExternal  Tier = "external"
	TierBinary    Tier = "binary"
	TierHeuristic Tier = "heuristic"
	TierFallback  Tier = "fallback"
)

// Level is the severity of a diagnostic.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Diagnostic is a single parser or pipeline message.
type Diagnostic struct {
	Message  string   `yaml:"message" json:"message"`
	Level    Level    `yaml:"level" json:"level"`
	Location Location `yaml:"location" json:"location"`
}

// Diagnostics groups errors and warnings of one parse.
type Diagnostics struct {
	Errors   []Diagnostic `yaml:"errors" json:"errors"`
	Warnings []Diagnostic `yaml:"warnings" json:"warnings"`
}

// Warn appends a warning without a source location.
func (d *Diagnostics) Warn(msg string) {
	d.Warnings = append(d.Warnings, Diagnostic{Message: msg, Level: LevelWarning})
}

// Merge appends other's entries after d's.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.Errors = append(d.Errors, other.Errors...)
	d.Warnings = append(d.Warnings, other.Warnings...)
}

// Result is the outcome of parsing one source text.
// Node is never nil when Success is true.
type Result struct {
	Node        *Program
	Source      string
	Tier        Tier
	Diagnostics Diagnostics
	Success     bool
}

// Body returns the top-level statements, or nil for an empty result.
func (r *Result) Body() []Node {
	if r == nil || r.Node == nil {
		return nil
	}
	return r.Node.Body
}
