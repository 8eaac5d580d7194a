// Package capabilities implements C15: the capabilities handshake and
// the `.context` legend (spec.md §4.15).
package capabilities

import "github.com/cortexlens/contextd/internal/freshness"

// SchemaVersion guards the capabilities response's own shape.
const SchemaVersion = 1

// ServerInfo names this build.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Versions reports protocol and index-state versioning.
type Versions struct {
	MCP         string `json:"mcp"`
	IndexSchema int    `json:"index_state"`
}

// Budgets are the server's default per-tool character budgets.
type Budgets struct {
	ReadPackMaxChars    int `json:"read_pack_max_chars"`
	ContextPackMaxChars int `json:"context_pack_max_chars"`
	SearchLimit         int `json:"search_limit"`
}

// DefaultBudgets mirrors the defaults used across C8/C10/C11 when a
// request omits them.
func DefaultBudgets() Budgets {
	return Budgets{ReadPackMaxChars: 8000, ContextPackMaxChars: 8000, SearchLimit: 10}
}

// StartRoute suggests the first call a new caller should make.
type StartRoute struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// Capabilities is the full handshake response (spec.md §4.15).
type Capabilities struct {
	SchemaVersion  int        `json:"schema_version"`
	Server         ServerInfo `json:"server"`
	Versions       Versions   `json:"versions"`
	DefaultBudgets Budgets    `json:"default_budgets"`
	StartRoute     StartRoute `json:"start_route"`
}

// Build reports this server's capabilities. indexed indicates whether a
// project root currently has a fresh index, which changes the
// suggested start route (spec.md §4.15 "start_route").
func Build(serverVersion string, indexed bool) Capabilities {
	route := StartRoute{Tool: "read_pack", Args: map[string]any{"intent": "onboarding"}, Reason: "no index yet; onboarding needs no index"}
	if indexed {
		route = StartRoute{Tool: "read_pack", Args: map[string]any{"intent": "memory"}, Reason: "index is available; start from project memory"}
	}
	return Capabilities{
		SchemaVersion: SchemaVersion,
		Server:        ServerInfo{Name: "contextd", Version: serverVersion},
		Versions:      Versions{MCP: "2024-11-05", IndexSchema: freshness.SchemaVersion},
		DefaultBudgets: DefaultBudgets(),
		StartRoute:     route,
	}
}

// Legend is the `.context` envelope format reference, both as prose and
// as a structured breakdown (spec.md §4.15 "help emits the .context
// legend as both a compact text block and a structured object").
type Legend struct {
	Text   string       `json:"text"`
	Fields []LegendLine `json:"fields"`
}

// LegendLine documents one envelope line prefix.
type LegendLine struct {
	Prefix      string `json:"prefix"`
	Description string `json:"description"`
}

const legendText = `[CONTENT]
A: <short answer line>
N: <note or diagnostic> (0..n)
R: <file>:<line> [<label>]
 <verbatim block, lines starting with ASCII space are quoted>
M: <cursor>                  (when a continuation exists)`

// Help returns the `.context` legend.
func Help() Legend {
	return Legend{
		Text: legendText,
		Fields: []LegendLine{
			{Prefix: "A:", Description: "short answer line"},
			{Prefix: "N:", Description: "note or diagnostic, zero or more"},
			{Prefix: "R:", Description: "file:line reference, followed by a space-quoted verbatim block"},
			{Prefix: "M:", Description: "continuation cursor, present only when more output remains"},
		},
	}
}
