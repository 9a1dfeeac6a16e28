// Copyright 2025 Nexo
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides structured JSON logging for the coordination
// core. Each component creates its own Logger; entries carry the component
// name and an optional request ID so log lines from concurrent requests can
// be correlated.
package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger writes structured log entries for one component.
type Logger struct {
	Component string

	mu  sync.Mutex
	out io.Writer
}

// Entry is the JSON shape of one log line.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// New creates a Logger for the named component, writing to stdout.
func New(component string) *Logger {
	return &Logger{
		Component: component,
		out:       os.Stdout,
	}
}

// NewWithWriter creates a Logger writing to the given writer. Intended for
// tests.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		Component: component,
		out:       w,
	}
}

// Log writes one structured entry.
func (l *Logger) Log(level Level, requestID, message string, fields map[string]any) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Fall back to plain text if marshaling fails.
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))
}

// Info logs an informational message.
func (l *Logger) Info(requestID, message string, fields map[string]any) {
	l.Log(INFO, requestID, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(requestID, message string, fields map[string]any) {
	l.Log(WARN, requestID, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(requestID, message string, fields map[string]any) {
	l.Log(ERROR, requestID, message, fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(requestID, message string, fields map[string]any) {
	l.Log(DEBUG, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field.
func (l *Logger) InfoWithDuration(requestID, message string, durationMs float64, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["duration_ms"] = durationMs
	l.Info(requestID, message, fields)
}

// ErrorWithErr logs an error message carrying the error string as a field.
func (l *Logger) ErrorWithErr(requestID, message string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(requestID, message, fields)
}
