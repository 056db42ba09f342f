package errors

import (
	"sort"
	"sync"
	"time"
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FileFailure is the last failure recorded against a source file.
type FileFailure struct {
	File      string
	Err       error
	Timestamp time.Time
}

// ErrorCollector tracks which source files currently fail to build so a
// watch session retries only those.
type ErrorCollector struct {
	failures map[string]FileFailure
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make(map[string]FileFailure),
	}
}

// Record stores err as the current failure of file. A nil err clears it.
func (ec *ErrorCollector) Record(file string, err error) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()

	if err == nil {
		delete(ec.failures, file)
		return
	}
	ec.failures[file] = FileFailure{File: file, Err: err, Timestamp: time.Now()}
}

// Resolve clears the failure recorded for file.
func (ec *ErrorCollector) Resolve(file string) {
	ec.Record(file, nil)
}

// Failed reports whether file currently has a recorded failure.
func (ec *ErrorCollector) Failed(file string) bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	_, ok := ec.failures[file]
	return ok
}

// Failures returns the recorded failures sorted by file.
func (ec *ErrorCollector) Failures() []FileFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]FileFailure, 0, len(ec.failures))
	for _, f := range ec.failures {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].File < result[j].File })
	return result
}

// HasErrors returns true if there are any failures
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}

// Clear clears all failures
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = make(map[string]FileFailure)
}
