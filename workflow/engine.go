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

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexo/coordination/llm"
	"nexo/coordination/shared/logger"
)

// Executor runs one request with fallback handling. The routing Coordinator
// satisfies this.
type Executor interface {
	ExecuteWithFallback(ctx context.Context, req llm.Request) *llm.Response
}

// Engine executes workflow definitions step by step, feeding each step's
// templated input from the accumulated results of prior steps.
type Engine struct {
	executor Executor
	storage  RunStorage
	logger   *logger.Logger
}

// EngineOption configures the workflow engine.
type EngineOption func(*Engine)

// WithRunStorage sets the run storage. Defaults to in-memory.
func WithRunStorage(s RunStorage) EngineOption {
	return func(e *Engine) {
		e.storage = s
	}
}

// WithEngineLogger sets the structured logger.
func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a workflow engine over the given executor.
func NewEngine(executor Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		executor: executor,
		logger:   logger.New("workflow"),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.storage == nil {
		e.storage = NewInMemoryRunStorage()
	}

	return e
}

// Run executes the workflow's steps in order. A failed critical step aborts
// the remaining steps; results accumulated so far are always returned. The
// run's Success holds iff every executed step succeeded or was non-critical.
func (e *Engine) Run(ctx context.Context, def Definition) (*RunResult, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", def.Name)
	}

	run := &RunResult{
		RunID:        uuid.NewString(),
		WorkflowName: def.Name,
		State:        StateRunning,
		StartTime:    time.Now(),
	}
	results := make(Context)

	e.logger.Info(run.RunID, "workflow started", map[string]any{
		"workflow": def.Name,
		"steps":    len(def.Steps),
	})

	aborted := false
	for _, step := range def.Steps {
		input := e.resolveInput(run.RunID, step, results)

		req := llm.Request{
			Input:           input,
			TaskType:        step.TaskType,
			ComplexityLevel: step.ComplexityLevel,
			MaxTokens:       step.MaxTokens,
			Temperature:     step.Temperature,
		}

		resp := e.executor.ExecuteWithFallback(ctx, req)

		result := StepResult{
			StepName:         step.Name,
			Success:          resp.Success,
			Content:          resp.Content,
			ProcessingTimeMs: resp.ProcessingTimeMs,
			ModelUsed:        resp.ModelUsed,
			ErrorMessage:     resp.ErrorMessage,
			Cost:             resp.Cost,
		}
		run.Steps = append(run.Steps, result)
		results[step.Name] = result
		run.TotalCost += resp.Cost

		if !resp.Success && step.IsCritical {
			e.logger.Error(run.RunID, "critical step failed, aborting workflow", map[string]any{
				"step":  step.Name,
				"error": resp.ErrorMessage,
			})
			aborted = true
			break
		}

		e.logger.InfoWithDuration(run.RunID, "step finished", float64(resp.ProcessingTimeMs), map[string]any{
			"step":    step.Name,
			"success": resp.Success,
		})
	}

	run.EndTime = time.Now()
	run.DurationMs = run.EndTime.Sub(run.StartTime).Milliseconds()
	if aborted {
		run.State = StateAborted
	} else {
		run.State = StateCompleted
	}
	run.Success = finalSuccess(def, run.Steps)

	if err := e.storage.SaveRun(run); err != nil {
		return run, fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}

	e.logger.InfoWithDuration(run.RunID, "workflow finished", float64(run.DurationMs), map[string]any{
		"state":      string(run.State),
		"success":    run.Success,
		"total_cost": run.TotalCost,
	})

	return run, nil
}

// GetRun returns a stored run record by ID.
func (e *Engine) GetRun(id string) (*RunResult, error) {
	return e.storage.GetRun(id)
}

// ListRuns returns stored runs for the named workflow.
func (e *Engine) ListRuns(workflowName string) ([]*RunResult, error) {
	return e.storage.ListRunsByWorkflow(workflowName)
}

// IsHealthy reports whether the engine is wired to an executor and storage.
func (e *Engine) IsHealthy() bool {
	return e.executor != nil && e.storage != nil
}

// finalSuccess holds iff every executed step succeeded or its step
// definition is not critical.
func finalSuccess(def Definition, executed []StepResult) bool {
	critical := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.IsCritical {
			critical[step.Name] = true
		}
	}
	for _, result := range executed {
		if !result.Success && critical[result.StepName] {
			return false
		}
	}
	return true
}

// resolveInput substitutes every declared {placeholder} token in the step's
// input template. Placeholders whose source step is absent from the context
// are skipped, leaving the token as-is.
func (e *Engine) resolveInput(runID string, step Step, results Context) string {
	input := step.InputTemplate

	for _, p := range step.Placeholders {
		token := "{" + p.Name + "}"

		if p.SourceStep == "" {
			input = strings.ReplaceAll(input, token, p.StaticValue)
			continue
		}

		source, exists := results[p.SourceStep]
		if !exists {
			e.logger.Warn(runID, "placeholder source step absent, leaving token unresolved", map[string]any{
				"step":        step.Name,
				"placeholder": p.Name,
				"source_step": p.SourceStep,
			})
			continue
		}

		input = strings.ReplaceAll(input, token, extractValue(source, p.ExtractionMethod))
	}

	return input
}

// extractValue pulls the requested projection of a step result's content.
func extractValue(result StepResult, method string) string {
	switch {
	case method == "" || method == ExtractFullContent:
		return result.Content

	case method == ExtractFirstLine:
		if i := strings.IndexByte(result.Content, '\n'); i >= 0 {
			return result.Content[:i]
		}
		return result.Content

	case strings.HasPrefix(method, ExtractJSONFieldPrefix):
		field := strings.TrimPrefix(method, ExtractJSONFieldPrefix)
		var parsed map[string]any
		if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil {
			return result.Content
		}
		if value, ok := parsed[field].(string); ok {
			return value
		}
		return result.Content

	default:
		return result.Content
	}
}
