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

package routing

import (
	"context"
	"errors"
	"testing"

	"nexo/coordination/llm"
)

// mockProvider is a configurable Provider for routing tests.
type mockProvider struct {
	name     string
	failWith error
	tokens   int
	cost     float64
	calls    int
}

func (p *mockProvider) Name() string { return p.name }

func (p *mockProvider) Execute(_ context.Context, _ llm.Request) (*llm.Response, error) {
	p.calls++
	if p.failWith != nil {
		return nil, p.failWith
	}
	return &llm.Response{
		Content:    "generated by " + p.name,
		Success:    true,
		ModelUsed:  p.name,
		TokensUsed: p.tokens,
		Cost:       p.cost,
	}, nil
}

func profileWith(tasks []string, maxComplexity int) llm.CapabilityProfile {
	return llm.CapabilityProfile{
		SupportedLanguages: []string{"en"},
		SupportedTasks:     tasks,
		MaxComplexity:      maxComplexity,
		MaxTokens:          8192,
		CostPerToken:       0.00002,
	}
}

func setupEngine(t *testing.T) (*llm.Registry, *MetricsStore, *SelectionEngine) {
	t.Helper()
	registry := llm.NewRegistry()
	metrics := NewMetricsStore()
	engine := NewSelectionEngine(registry, metrics)
	return registry, metrics, engine
}

func TestSelectionEngine_NeutralScoresForUntestedProvider(t *testing.T) {
	var zero PerformanceMetrics
	if got := performanceScore(zero); got != 0.5 {
		t.Errorf("performanceScore(zero history) = %f, want 0.5", got)
	}
	if got := costEfficiency(zero); got != 0.5 {
		t.Errorf("costEfficiency(zero history) = %f, want 0.5", got)
	}
	if got := reliability(zero); got != 0.5 {
		t.Errorf("reliability(zero history) = %f, want 0.5", got)
	}
}

func TestSelectionEngine_SelectOptimal(t *testing.T) {
	req := llm.Request{
		Input:           "summarize the incident report",
		TaskType:        "analysis",
		ComplexityLevel: 4,
	}

	t.Run("capability fit dominates with zero history", func(t *testing.T) {
		// A handles complexity 5, B only 2; both have no history, so the
		// capability term decides: A scores 1.0 vs B's 2/3.
		registry, _, engine := setupEngine(t)
		_ = registry.Register("provider-a", &mockProvider{name: "provider-a"}, profileWith([]string{"analysis"}, 5))
		_ = registry.Register("provider-b", &mockProvider{name: "provider-b"}, profileWith([]string{"analysis"}, 2))

		name, decision, err := engine.SelectOptimal(req, nil)
		if err != nil {
			t.Fatalf("SelectOptimal error: %v", err)
		}
		if name != "provider-a" {
			t.Errorf("selected %q, want provider-a", name)
		}
		if decision.Scores["provider-a"].CapabilityMatch != 1.0 {
			t.Errorf("provider-a capability = %f, want 1.0", decision.Scores["provider-a"].CapabilityMatch)
		}
		if b := decision.Scores["provider-b"].CapabilityMatch; b > 0.67 {
			t.Errorf("provider-b capability = %f, want <= 0.67", b)
		}
	})

	t.Run("deterministic over unchanged state", func(t *testing.T) {
		registry, _, engine := setupEngine(t)
		_ = registry.Register("provider-a", &mockProvider{name: "provider-a"}, profileWith([]string{"analysis"}, 3))
		_ = registry.Register("provider-b", &mockProvider{name: "provider-b"}, profileWith([]string{"analysis"}, 3))

		first, _, err := engine.SelectOptimal(req, nil)
		if err != nil {
			t.Fatalf("SelectOptimal error: %v", err)
		}
		second, _, err := engine.SelectOptimal(req, nil)
		if err != nil {
			t.Fatalf("SelectOptimal error: %v", err)
		}
		if first != second {
			t.Errorf("selection changed between calls: %q then %q", first, second)
		}
	})

	t.Run("ties break toward earlier registration", func(t *testing.T) {
		registry, _, engine := setupEngine(t)
		_ = registry.Register("second-best", &mockProvider{name: "second-best"}, profileWith([]string{"analysis"}, 5))
		_ = registry.Register("identical", &mockProvider{name: "identical"}, profileWith([]string{"analysis"}, 5))

		name, _, err := engine.SelectOptimal(req, nil)
		if err != nil {
			t.Fatalf("SelectOptimal error: %v", err)
		}
		if name != "second-best" {
			t.Errorf("selected %q, want first-registered on tie", name)
		}
	})

	t.Run("excluded providers are skipped", func(t *testing.T) {
		registry, _, engine := setupEngine(t)
		_ = registry.Register("provider-a", &mockProvider{name: "provider-a"}, profileWith([]string{"analysis"}, 5))
		_ = registry.Register("provider-b", &mockProvider{name: "provider-b"}, profileWith([]string{"analysis"}, 5))

		name, _, err := engine.SelectOptimal(req, map[string]bool{"provider-a": true})
		if err != nil {
			t.Fatalf("SelectOptimal error: %v", err)
		}
		if name != "provider-b" {
			t.Errorf("selected %q, want provider-b", name)
		}
	})

	t.Run("no candidate when all excluded", func(t *testing.T) {
		registry, _, engine := setupEngine(t)
		_ = registry.Register("provider-a", &mockProvider{name: "provider-a"}, profileWith([]string{"analysis"}, 5))

		_, _, err := engine.SelectOptimal(req, map[string]bool{"provider-a": true})
		if !errors.Is(err, ErrNoCandidateAvailable) {
			t.Errorf("error = %v, want ErrNoCandidateAvailable", err)
		}
	})

	t.Run("no candidate on empty registry", func(t *testing.T) {
		_, _, engine := setupEngine(t)
		_, _, err := engine.SelectOptimal(req, nil)
		if !errors.Is(err, ErrNoCandidateAvailable) {
			t.Errorf("error = %v, want ErrNoCandidateAvailable", err)
		}
	})

	t.Run("history shifts ranking", func(t *testing.T) {
		registry, metrics, engine := setupEngine(t)
		_ = registry.Register("flaky", &mockProvider{name: "flaky"}, profileWith([]string{"analysis"}, 5))
		_ = registry.Register("steady", &mockProvider{name: "steady"}, profileWith([]string{"analysis"}, 5))

		// flaky: all failures; steady: all fast successes.
		for i := 0; i < 10; i++ {
			metrics.RecordOutcome("flaky", 200, false, 0, 0)
			metrics.RecordOutcome("steady", 200, true, 100, 0.001)
		}

		name, _, err := engine.SelectOptimal(req, nil)
		if err != nil {
			t.Fatalf("SelectOptimal error: %v", err)
		}
		if name != "steady" {
			t.Errorf("selected %q, want steady", name)
		}
	})
}

func TestSelectionEngine_DecisionRecord(t *testing.T) {
	registry, _, engine := setupEngine(t)
	_ = registry.Register("provider-a", &mockProvider{name: "provider-a"}, profileWith([]string{"analysis"}, 5))
	_ = registry.Register("provider-b", &mockProvider{name: "provider-b"}, profileWith([]string{"analysis"}, 2))

	req := llm.Request{TaskType: "analysis", ComplexityLevel: 3}
	_, decision, err := engine.SelectOptimal(req, nil)
	if err != nil {
		t.Fatalf("SelectOptimal error: %v", err)
	}

	if len(decision.ConsideredProviders) != 2 {
		t.Errorf("ConsideredProviders = %v, want 2 entries", decision.ConsideredProviders)
	}
	if len(decision.Scores) != 2 {
		t.Errorf("Scores has %d entries, want 2", len(decision.Scores))
	}
	if len(decision.Reasoning) == 0 {
		t.Error("Reasoning should not be empty")
	}
	if decision.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestSelectionEngine_MatchedRules(t *testing.T) {
	registry, metrics, _ := setupEngine(t)
	rules := NewRuleSet(SelectionRule{
		Name:     "analysis-tasks",
		Priority: 5,
		Kind:     RuleKindTaskEquals,
		Params:   map[string]string{"task": "analysis"},
	})
	engine := NewSelectionEngine(registry, metrics, WithRuleSet(rules))
	_ = registry.Register("provider-a", &mockProvider{name: "provider-a"}, profileWith([]string{"analysis"}, 5))

	_, decision, err := engine.SelectOptimal(llm.Request{TaskType: "analysis", ComplexityLevel: 1}, nil)
	if err != nil {
		t.Fatalf("SelectOptimal error: %v", err)
	}
	if len(decision.MatchedRules) != 1 || decision.MatchedRules[0] != "analysis-tasks" {
		t.Errorf("MatchedRules = %v, want [analysis-tasks]", decision.MatchedRules)
	}

	_, decision, err = engine.SelectOptimal(llm.Request{TaskType: "analysis", ComplexityLevel: 1, RequiredLanguages: []string{"en"}}, nil)
	if err != nil {
		t.Fatalf("SelectOptimal error: %v", err)
	}
	if len(decision.MatchedRules) != 1 {
		t.Errorf("MatchedRules = %v, want one match", decision.MatchedRules)
	}
}
