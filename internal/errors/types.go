package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind represents the category of a build failure.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindSchemaInvalid Kind = "schema_invalid"
	KindCompile       Kind = "compile"
	KindRender        Kind = "render"
	KindFileSystem    Kind = "filesystem"
	KindConfig        Kind = "config"
)

// Common error codes.
const (
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeMissingKey       = "ERR_MISSING_KEY"
	ErrCodeDefaultExample   = "ERR_DEFAULT_EXAMPLE"
	ErrCodeMalformed        = "ERR_MALFORMED"
	ErrCodeStylesheet       = "ERR_STYLESHEET"
	ErrCodeScript           = "ERR_SCRIPT"
	ErrCodeTemplate         = "ERR_TEMPLATE"
	ErrCodeMarkup           = "ERR_MARKUP"
	ErrCodeRead             = "ERR_READ"
	ErrCodeWrite            = "ERR_WRITE"
	ErrCodeClean            = "ERR_CLEAN"
	ErrCodeCollision        = "ERR_DEST_COLLISION"
	ErrCodePathTraversal    = "ERR_PATH_TRAVERSAL"
	ErrCodeCommandInjection = "ERR_COMMAND_INJECTION"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeVersion          = "ERR_VERSION"
)

// Sentinels for errors.Is checks by kind.
var (
	ErrNotFound      = &ToolkitError{Kind: KindNotFound}
	ErrSchemaInvalid = &ToolkitError{Kind: KindSchemaInvalid}
	ErrCompile       = &ToolkitError{Kind: KindCompile}
	ErrRender        = &ToolkitError{Kind: KindRender}
	ErrFileSystem    = &ToolkitError{Kind: KindFileSystem}
	ErrConfig        = &ToolkitError{Kind: KindConfig}
)

// ToolkitError is a structured error carrying the failing location and,
// for compile failures, the tool diagnostic.
type ToolkitError struct {
	Kind       Kind
	Code       string
	Message    string
	Cause      error
	Context    map[string]interface{}
	Component  string
	FilePath   string
	Line       int
	Column     int
	Diagnostic string
}

// Error implements the error interface. A tool diagnostic, when present,
// follows on its own lines.
func (e *ToolkitError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	if e.Diagnostic != "" && (e.Cause == nil || e.Cause.Error() != e.Diagnostic) {
		result += "\n" + e.Diagnostic
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ToolkitError) Unwrap() error {
	return e.Cause
}

// Is matches on kind, and on code when the target carries one.
func (e *ToolkitError) Is(target error) bool {
	var t *ToolkitError
	if !errors.As(target, &t) {
		return false
	}

	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// WithContext adds context information to the error.
func (e *ToolkitError) WithContext(key string, value interface{}) *ToolkitError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *ToolkitError) WithLocation(filePath string, line, column int) *ToolkitError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithComponent adds component context.
func (e *ToolkitError) WithComponent(component string) *ToolkitError {
	e.Component = component

	return e
}

// NotFound reports a missing source file or directory.
func NotFound(path string, cause error) *ToolkitError {
	return &ToolkitError{
		Kind:     KindNotFound,
		Code:     ErrCodeFileNotFound,
		Message:  "not found",
		Cause:    cause,
		FilePath: path,
	}
}

// SchemaInvalid reports a definition file that does not satisfy the
// definition schema.
func SchemaInvalid(path, code, message string) *ToolkitError {
	return &ToolkitError{
		Kind:     KindSchemaInvalid,
		Code:     code,
		Message:  message,
		FilePath: path,
	}
}

// CompileError reports a stylesheet or script toolchain failure.
func CompileError(path, code, diagnostic string, cause error) *ToolkitError {
	return &ToolkitError{
		Kind:       KindCompile,
		Code:       code,
		Message:    "compilation failed",
		Cause:      cause,
		FilePath:   path,
		Diagnostic: diagnostic,
	}
}

// RenderError reports a template render failure for one example.
func RenderError(component, example string, cause error) *ToolkitError {
	return (&ToolkitError{
		Kind:      KindRender,
		Code:      ErrCodeTemplate,
		Message:   fmt.Sprintf("rendering example %q failed", example),
		Cause:     cause,
		Component: component,
	}).WithContext("example", example)
}

// FileSystemError reports a failed read, write or removal.
func FileSystemError(code, path string, cause error) *ToolkitError {
	return &ToolkitError{
		Kind:     KindFileSystem,
		Code:     code,
		Message:  "filesystem operation failed",
		Cause:    cause,
		FilePath: path,
	}
}

// ConfigError reports invalid configuration.
func ConfigError(code, message string) *ToolkitError {
	return &ToolkitError{
		Kind:    KindConfig,
		Code:    code,
		Message: message,
	}
}

// IsKind checks whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var te *ToolkitError
	if errors.As(err, &te) {
		return te.Kind == kind
	}

	return false
}

// KindOf returns the kind of the first ToolkitError in the chain.
func KindOf(err error) (Kind, bool) {
	var te *ToolkitError
	if errors.As(err, &te) {
		return te.Kind, true
	}

	return "", false
}

// IsFatal decides whether err terminates the current invocation. In
// one-shot builds every error is fatal. In watch mode only filesystem and
// configuration errors are, everything else is reported and retried on the
// next change.
func IsFatal(err error, watch bool) bool {
	if err == nil {
		return false
	}
	if !watch {
		return true
	}

	kind, ok := KindOf(err)
	if !ok {
		return true
	}

	return kind == KindFileSystem || kind == KindConfig
}

// ErrPathTraversal creates a path traversal error.
func ErrPathTraversal(path string) *ToolkitError {
	return ConfigError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrCommandInjection creates a command injection error.
func ErrCommandInjection(command string) *ToolkitError {
	return ConfigError(ErrCodeCommandInjection, "command injection attempt: "+command)
}
