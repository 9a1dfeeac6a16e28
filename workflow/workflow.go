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

// Package workflow implements the step-sequenced workflow engine: ordered
// steps with templated inputs fed from prior step results, critical-step
// abort semantics, and per-run result storage.
package workflow

import (
	"time"
)

// State is the lifecycle state of one workflow run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Extraction methods for step-sourced placeholders.
const (
	// ExtractFullContent substitutes the entire content of the source
	// step's result (the default when ExtractionMethod is empty).
	ExtractFullContent = "full_content"

	// ExtractFirstLine substitutes only the first line of the source
	// step's content.
	ExtractFirstLine = "first_line"

	// ExtractJSONFieldPrefix selects one top-level string field from the
	// source step's content parsed as JSON, e.g. "json_field:summary".
	ExtractJSONFieldPrefix = "json_field:"
)

// Definition is a complete workflow: a name and an ordered list of steps.
type Definition struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Step is one unit of a workflow.
type Step struct {
	// Name identifies the step; step results are keyed by it.
	Name string `json:"name"`

	// IsCritical marks a step whose failure aborts the remaining
	// workflow.
	IsCritical bool `json:"is_critical"`

	// TaskType and ComplexityLevel are carried into the request built
	// for this step.
	TaskType        string `json:"task_type"`
	ComplexityLevel int    `json:"complexity_level"`

	// MaxTokens limits the step's response size. 0 means provider
	// default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature for the step's request.
	Temperature float64 `json:"temperature,omitempty"`

	// InputTemplate is the step input with {placeholder} tokens.
	InputTemplate string `json:"input_template"`

	// Placeholders declares how each {name} token in the template is
	// resolved.
	Placeholders []Placeholder `json:"placeholders,omitempty"`
}

// Placeholder binds one {Name} token in a step's input template.
//
// Static placeholders (SourceStep empty) substitute StaticValue. Step-sourced
// placeholders pull a value out of the named prior step's result using the
// extraction method. A placeholder whose source step has not run is left
// unresolved in the template; that is not an error.
type Placeholder struct {
	Name             string `json:"name"`
	SourceStep       string `json:"source_step,omitempty"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	StaticValue      string `json:"static_value,omitempty"`
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	StepName         string  `json:"step_name"`
	Success          bool    `json:"success"`
	Content          string  `json:"content"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	ModelUsed        string  `json:"model_used"`
	ErrorMessage     string  `json:"error_message,omitempty"`
	Cost             float64 `json:"cost"`
}

// Context accumulates step results during one run, keyed by step name.
// It is append-only while the run executes and discarded afterwards; runs
// never share context.
type Context map[string]StepResult

// RunResult is the complete record of one workflow run.
type RunResult struct {
	RunID        string       `json:"run_id"`
	WorkflowName string       `json:"workflow_name"`
	State        State        `json:"state"`
	Success      bool         `json:"success"`
	Steps        []StepResult `json:"steps"`
	TotalCost    float64      `json:"total_cost"`
	DurationMs   int64        `json:"duration_ms"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
}
