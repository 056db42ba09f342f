// Package errors defines the error taxonomy of the asset pipeline and the
// parsing of toolchain diagnostics into structured form.
//
// Every failure surfaced by a build is a *ToolkitError of one kind:
// NotFound, SchemaInvalid, CompileError, RenderError, FileSystemError or
// ConfigError. Compile errors carry the raw diagnostic of the tool that
// produced them; the parser below turns sass CLI output into ParsedError
// values for display.
package errors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedError represents a parsed diagnostic with structured information
type ParsedError struct {
	Severity ErrorSeverity `json:"severity"`
	File     string        `json:"file"`
	Line     int           `json:"line"`
	Column   int           `json:"column"`
	Message  string        `json:"message"`
	RawError string        `json:"raw_error"`
	Context  []string      `json:"context,omitempty"`
}

// ErrorParser parses sass diagnostics into structured form
type ErrorParser struct {
	headline *regexp.Regexp
	location *regexp.Regexp
	inline   *regexp.Regexp
}

// NewErrorParser creates a new error parser
func NewErrorParser() *ErrorParser {
	return &ErrorParser{
		// Error: expected ";".
		headline: regexp.MustCompile(`^(Error|Warning|DEPRECATION WARNING):\s*(.*)$`),
		// src/toolkit/all.scss 3:13  root stylesheet
		location: regexp.MustCompile(`^(\S+\.(?:scss|sass|css))\s+(\d+):(\d+)\b`),
		// src/toolkit/all.scss:3:13: error message
		inline: regexp.MustCompile(`^(\S+\.(?:scss|sass|css)):(\d+):(\d+):\s*(.*)$`),
	}
}

// ParseError parses tool output into structured errors. Each headline starts
// a new diagnostic; the first location line after it fills in the position.
func (ep *ErrorParser) ParseError(output string) []*ParsedError {
	var parsed []*ParsedError
	var current *ParsedError

	lines := strings.Split(output, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := ep.headline.FindStringSubmatch(line); m != nil {
			severity := ErrorSeverityError
			if m[1] != "Error" {
				severity = ErrorSeverityWarning
			}
			current = &ParsedError{Severity: severity, Message: m[2], RawError: line}
			parsed = append(parsed, current)
			continue
		}

		if m := ep.inline.FindStringSubmatch(line); m != nil {
			parsed = append(parsed, &ParsedError{
				Severity: ErrorSeverityError,
				File:     m[1],
				Line:     atoi(m[2]),
				Column:   atoi(m[3]),
				Message:  m[4],
				RawError: raw,
			})
			current = nil
			continue
		}

		if m := ep.location.FindStringSubmatch(line); m != nil && current != nil && current.File == "" {
			current.File = m[1]
			current.Line = atoi(m[2])
			current.Column = atoi(m[3])
			current.Context = contextLines(lines, i, 3)
		}
	}

	if len(parsed) == 0 && strings.TrimSpace(output) != "" {
		parsed = append(parsed, &ParsedError{
			Severity: ErrorSeverityError,
			Message:  firstLine(output),
			RawError: output,
		})
	}

	return parsed
}

// FormatError formats the error for terminal display
func (pe *ParsedError) FormatError() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("[%s]", strings.ToUpper(pe.Severity.String())))

	if pe.File != "" {
		builder.WriteString(fmt.Sprintf(" %s", pe.File))
		if pe.Line > 0 {
			builder.WriteString(fmt.Sprintf(":%d", pe.Line))
			if pe.Column > 0 {
				builder.WriteString(fmt.Sprintf(":%d", pe.Column))
			}
		}
	}

	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("  %s\n", pe.Message))

	if len(pe.Context) > 0 {
		for _, line := range pe.Context {
			builder.WriteString(fmt.Sprintf("    %s\n", line))
		}
	}

	return builder.String()
}

// FormatErrors joins the formatted form of several diagnostics.
func FormatErrors(errs []*ParsedError) string {
	var b strings.Builder
	for _, e := range errs {
		b.WriteString(e.FormatError())
	}
	return b.String()
}

func contextLines(lines []string, index, radius int) []string {
	start := index - radius
	if start < 0 {
		start = 0
	}
	var out []string
	for _, l := range lines[start:index] {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, " \t\r"))
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
