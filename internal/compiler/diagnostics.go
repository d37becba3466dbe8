package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Severity of a diagnostic as printed by tsc/tstl.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityMessage Severity = "message"
)

// Diagnostic is one compiler message. Line and Column are 1-based; zero
// means the message has no position.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&b, "(%d,%d)", d.Line, d.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(d.Severity))
	if d.Code != "" {
		b.WriteString(" " + d.Code)
	}
	b.WriteString(": " + d.Message)
	return b.String()
}

type diagnosticPattern struct {
	regex       *regexp.Regexp
	parseFields func(matches []string) Diagnostic
}

// DiagnosticParser extracts diagnostics from compiler output.
type DiagnosticParser struct {
	patterns []diagnosticPattern
}

// NewDiagnosticParser creates a parser for tsc and tstl output.
func NewDiagnosticParser() *DiagnosticParser {
	return &DiagnosticParser{patterns: buildPatterns()}
}

// Parse returns the diagnostics found in output in the order printed.
// Indented continuation lines are appended to the preceding message.
func (p *DiagnosticParser) Parse(output string) []Diagnostic {
	var diagnostics []Diagnostic

	for _, raw := range strings.Split(output, "\n") {
		raw = strings.TrimRight(raw, "\r")
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if d, ok := p.match(line); ok {
			diagnostics = append(diagnostics, d)
			continue
		}

		if len(diagnostics) > 0 && raw != line && (raw[0] == ' ' || raw[0] == '\t') {
			last := &diagnostics[len(diagnostics)-1]
			last.Message += "\n" + line
		}
	}

	return diagnostics
}

func (p *DiagnosticParser) match(line string) (Diagnostic, bool) {
	for _, pattern := range p.patterns {
		if matches := pattern.regex.FindStringSubmatch(line); matches != nil {
			return pattern.parseFields(matches), true
		}
	}
	return Diagnostic{}, false
}

func buildPatterns() []diagnosticPattern {
	return []diagnosticPattern{
		{
			// main.ts(3,7): error TS2322: Type 'string' is not assignable to type 'number'.
			regex: regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning|message) ([A-Z]+\d*): (.+)$`),
			parseFields: func(m []string) Diagnostic {
				line, _ := strconv.Atoi(m[2])
				column, _ := strconv.Atoi(m[3])
				return Diagnostic{
					File:     m[1],
					Line:     line,
					Column:   column,
					Severity: Severity(m[4]),
					Code:     m[5],
					Message:  m[6],
				}
			},
		},
		{
			// main.ts:3:7 - error TS2322: ... (tsc --pretty)
			regex: regexp.MustCompile(`^(.+?):(\d+):(\d+) - (error|warning|message) ([A-Z]+\d*): (.+)$`),
			parseFields: func(m []string) Diagnostic {
				line, _ := strconv.Atoi(m[2])
				column, _ := strconv.Atoi(m[3])
				return Diagnostic{
					File:     m[1],
					Line:     line,
					Column:   column,
					Severity: Severity(m[4]),
					Code:     m[5],
					Message:  m[6],
				}
			},
		},
		{
			// error TS5058: The specified path does not exist: 'tsconfig.json'.
			regex: regexp.MustCompile(`^(error|warning|message) ([A-Z]+\d*): (.+)$`),
			parseFields: func(m []string) Diagnostic {
				return Diagnostic{Severity: Severity(m[1]), Code: m[2], Message: m[3]}
			},
		},
	}
}
