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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexo/coordination/llm"
)

// scriptedExecutor returns canned responses keyed by step input substring,
// and records every request it receives.
type scriptedExecutor struct {
	failOn   map[string]string // input substring -> error message
	contents map[string]string // input substring -> content override
	requests []llm.Request
}

func (s *scriptedExecutor) ExecuteWithFallback(_ context.Context, req llm.Request) *llm.Response {
	s.requests = append(s.requests, req)

	for substring, message := range s.failOn {
		if strings.Contains(req.Input, substring) {
			return &llm.Response{Success: false, ErrorMessage: message, ModelUsed: "scripted"}
		}
	}

	content := "output for: " + req.Input
	for substring, override := range s.contents {
		if strings.Contains(req.Input, substring) {
			content = override
		}
	}
	return &llm.Response{
		Success:          true,
		Content:          content,
		ModelUsed:        "scripted",
		ProcessingTimeMs: 5,
		Cost:             0.01,
	}
}

func TestEngine_Run_AllStepsSucceed(t *testing.T) {
	executor := &scriptedExecutor{}
	engine := NewEngine(executor)

	def := Definition{
		Name: "two-step",
		Steps: []Step{
			{Name: "gather", TaskType: "analysis", ComplexityLevel: 2, InputTemplate: "gather data"},
			{Name: "report", TaskType: "summarization", ComplexityLevel: 1, InputTemplate: "write report"},
		},
	}

	run, err := engine.Run(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, run.State)
	assert.True(t, run.Success)
	assert.Len(t, run.Steps, 2)
	assert.InDelta(t, 0.02, run.TotalCost, 1e-9)
	assert.NotEmpty(t, run.RunID)
}

func TestEngine_Run_CriticalStepAborts(t *testing.T) {
	executor := &scriptedExecutor{
		failOn: map[string]string{"validate": "provider down"},
	}
	engine := NewEngine(executor)

	def := Definition{
		Name: "three-step",
		Steps: []Step{
			{Name: "draft", TaskType: "generation", ComplexityLevel: 2, InputTemplate: "draft the plan"},
			{Name: "validate", IsCritical: true, TaskType: "analysis", ComplexityLevel: 3, InputTemplate: "validate the draft"},
			{Name: "publish", TaskType: "generation", ComplexityLevel: 1, InputTemplate: "publish result"},
		},
	}

	run, err := engine.Run(context.Background(), def)
	require.NoError(t, err)

	// Step 3 must never execute; results cover the two executed steps.
	assert.Len(t, run.Steps, 2)
	assert.Equal(t, StateAborted, run.State)
	assert.False(t, run.Success)
	assert.Equal(t, "validate", run.Steps[1].StepName)
	assert.Equal(t, "provider down", run.Steps[1].ErrorMessage)
	assert.Len(t, executor.requests, 2)
}

func TestEngine_Run_NonCriticalFailureContinues(t *testing.T) {
	executor := &scriptedExecutor{
		failOn: map[string]string{"enrich": "timeout"},
	}
	engine := NewEngine(executor)

	def := Definition{
		Name: "tolerant",
		Steps: []Step{
			{Name: "enrich", TaskType: "analysis", ComplexityLevel: 2, InputTemplate: "enrich input"},
			{Name: "finish", TaskType: "generation", ComplexityLevel: 1, InputTemplate: "finish up"},
		},
	}

	run, err := engine.Run(context.Background(), def)
	require.NoError(t, err)

	// finalSuccess == all(step.success || !step.isCritical).
	assert.Equal(t, StateCompleted, run.State)
	assert.True(t, run.Success)
	assert.Len(t, run.Steps, 2)
	assert.False(t, run.Steps[0].Success)
	assert.True(t, run.Steps[1].Success)
}

func TestEngine_Run_PlaceholderResolution(t *testing.T) {
	t.Run("static placeholder", func(t *testing.T) {
		executor := &scriptedExecutor{}
		engine := NewEngine(executor)

		def := Definition{
			Name: "static",
			Steps: []Step{
				{
					Name:          "only",
					TaskType:      "generation",
					InputTemplate: "analyze {region} sales",
					Placeholders:  []Placeholder{{Name: "region", StaticValue: "EMEA"}},
				},
			},
		}

		_, err := engine.Run(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, "analyze EMEA sales", executor.requests[0].Input)
	})

	t.Run("step-sourced full content", func(t *testing.T) {
		executor := &scriptedExecutor{contents: map[string]string{"first": "FIRST-RESULT"}}
		engine := NewEngine(executor)

		def := Definition{
			Name: "chained",
			Steps: []Step{
				{Name: "first", TaskType: "analysis", InputTemplate: "first step"},
				{
					Name:          "second",
					TaskType:      "generation",
					InputTemplate: "summarize: {prior}",
					Placeholders:  []Placeholder{{Name: "prior", SourceStep: "first"}},
				},
			},
		}

		_, err := engine.Run(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, "summarize: FIRST-RESULT", executor.requests[1].Input)
	})

	t.Run("first line extraction", func(t *testing.T) {
		executor := &scriptedExecutor{contents: map[string]string{"first": "headline\nbody text"}}
		engine := NewEngine(executor)

		def := Definition{
			Name: "firstline",
			Steps: []Step{
				{Name: "first", TaskType: "analysis", InputTemplate: "first step"},
				{
					Name:          "second",
					TaskType:      "generation",
					InputTemplate: "expand: {title}",
					Placeholders: []Placeholder{
						{Name: "title", SourceStep: "first", ExtractionMethod: ExtractFirstLine},
					},
				},
			},
		}

		_, err := engine.Run(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, "expand: headline", executor.requests[1].Input)
	})

	t.Run("json field extraction", func(t *testing.T) {
		executor := &scriptedExecutor{contents: map[string]string{"first": `{"summary":"all good","score":"9"}`}}
		engine := NewEngine(executor)

		def := Definition{
			Name: "jsonfield",
			Steps: []Step{
				{Name: "first", TaskType: "analysis", InputTemplate: "first step"},
				{
					Name:          "second",
					TaskType:      "generation",
					InputTemplate: "verdict: {verdict}",
					Placeholders: []Placeholder{
						{Name: "verdict", SourceStep: "first", ExtractionMethod: "json_field:summary"},
					},
				},
			},
		}

		_, err := engine.Run(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, "verdict: all good", executor.requests[1].Input)
	})

	t.Run("absent source step leaves token unresolved", func(t *testing.T) {
		executor := &scriptedExecutor{}
		engine := NewEngine(executor)

		def := Definition{
			Name: "unresolved",
			Steps: []Step{
				{
					Name:          "only",
					TaskType:      "generation",
					InputTemplate: "use {missing} here",
					Placeholders:  []Placeholder{{Name: "missing", SourceStep: "never-ran"}},
				},
			},
		}

		run, err := engine.Run(context.Background(), def)
		require.NoError(t, err)
		// Unresolved placeholders are skipped silently, not errors.
		assert.Equal(t, "use {missing} here", executor.requests[0].Input)
		assert.True(t, run.Success)
	})
}

func TestEngine_Run_EmptyDefinition(t *testing.T) {
	engine := NewEngine(&scriptedExecutor{})
	_, err := engine.Run(context.Background(), Definition{Name: "empty"})
	require.Error(t, err)
}

func TestEngine_RunStorage(t *testing.T) {
	executor := &scriptedExecutor{}
	storage := NewInMemoryRunStorage()
	engine := NewEngine(executor, WithRunStorage(storage))

	def := Definition{
		Name:  "stored",
		Steps: []Step{{Name: "only", TaskType: "analysis", InputTemplate: "run once"}},
	}

	run, err := engine.Run(context.Background(), def)
	require.NoError(t, err)

	fetched, err := engine.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, fetched.RunID)

	listed, err := engine.ListRuns("stored")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = engine.GetRun("no-such-run")
	assert.Error(t, err)
}

func TestFinalSuccess(t *testing.T) {
	def := Definition{
		Steps: []Step{
			{Name: "a", IsCritical: true},
			{Name: "b"},
		},
	}

	tests := []struct {
		name     string
		executed []StepResult
		want     bool
	}{
		{
			name:     "all succeed",
			executed: []StepResult{{StepName: "a", Success: true}, {StepName: "b", Success: true}},
			want:     true,
		},
		{
			name:     "non-critical failure tolerated",
			executed: []StepResult{{StepName: "a", Success: true}, {StepName: "b", Success: false}},
			want:     true,
		},
		{
			name:     "critical failure fatal",
			executed: []StepResult{{StepName: "a", Success: false}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, finalSuccess(def, tt.executed))
		})
	}
}
