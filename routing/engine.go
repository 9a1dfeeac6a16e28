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

// Package routing implements the decision core of the Nexo coordination
// layer: weighted provider selection, per-provider performance metrics,
// fallback execution, and the adaptive rule loop that feeds selection from
// observed performance.
package routing

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"nexo/coordination/llm"
)

// ErrNoCandidateAvailable is returned when selection finds zero eligible
// providers (registry empty or every provider excluded). Callers that must
// make progress anyway supply a configured default provider name on this
// path.
var ErrNoCandidateAvailable = errors.New("no candidate provider available")

// Score blend weights. Capability fit dominates, then observed performance,
// then cost, then reliability.
const (
	weightCapability  = 0.4
	weightPerformance = 0.3
	weightCost        = 0.2
	weightReliability = 0.1

	// neutralScore is used for providers with zero recorded requests so
	// new or untested providers are not unfairly penalized.
	neutralScore = 0.5

	// latencyCeilingMs is the response-time normalization ceiling: an
	// average at or above this scores zero on the latency term.
	latencyCeilingMs = 10000.0
)

// ScoreBreakdown holds the per-factor scores behind one provider ranking.
type ScoreBreakdown struct {
	CapabilityMatch  float64 `json:"capability_match"`
	PerformanceScore float64 `json:"performance_score"`
	CostEfficiency   float64 `json:"cost_efficiency"`
	Reliability      float64 `json:"reliability"`
	Total            float64 `json:"total"`
}

// Decision records how a selection was made: the winner, per-provider score
// breakdowns, and human-readable reasoning.
type Decision struct {
	SelectedProvider    string                    `json:"selected_provider"`
	Reasoning           []string                  `json:"reasoning"`
	Scores              map[string]ScoreBreakdown `json:"scores"`
	ConsideredProviders []string                  `json:"considered_providers"`
	MatchedRules        []string                  `json:"matched_rules,omitempty"`
	Timestamp           time.Time                 `json:"timestamp"`
}

// SelectionEngine ranks registered providers against a request's
// requirements. Scoring is a pure function of the registry and the metrics
// store, so repeated calls over unchanged state are deterministic.
type SelectionEngine struct {
	registry *llm.Registry
	metrics  *MetricsStore
	rules    *RuleSet
	logger   *log.Logger
}

// EngineOption configures the selection engine.
type EngineOption func(*SelectionEngine)

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *SelectionEngine) {
		e.logger = l
	}
}

// WithRuleSet sets the rule set consulted during selection.
func WithRuleSet(rs *RuleSet) EngineOption {
	return func(e *SelectionEngine) {
		e.rules = rs
	}
}

// NewSelectionEngine creates a selection engine over the given registry and
// metrics store.
func NewSelectionEngine(registry *llm.Registry, metrics *MetricsStore, opts ...EngineOption) *SelectionEngine {
	e := &SelectionEngine{
		registry: registry,
		metrics:  metrics,
		logger:   log.New(os.Stdout, "[SELECTION] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.rules == nil {
		e.rules = NewRuleSet()
	}

	return e
}

// SelectOptimal scores every registered provider not in excluded and returns
// the top-ranked provider name together with the decision record. Ties break
// toward the earlier-registered provider. When no candidates remain it
// returns ErrNoCandidateAvailable.
func (e *SelectionEngine) SelectOptimal(req llm.Request, excluded map[string]bool) (string, *Decision, error) {
	decision := &Decision{
		Scores:    make(map[string]ScoreBreakdown),
		Timestamp: time.Now(),
	}

	var best string
	var bestScore float64

	for _, name := range e.registry.Names() {
		if excluded[name] {
			continue
		}
		profile, ok := e.registry.Profile(name)
		if !ok {
			continue
		}
		decision.ConsideredProviders = append(decision.ConsideredProviders, name)

		breakdown := e.score(req, name, profile)
		decision.Scores[name] = breakdown

		// Strictly greater keeps the first-registered provider on ties.
		if best == "" || breakdown.Total > bestScore {
			best = name
			bestScore = breakdown.Total
		}
	}

	if best == "" {
		return "", nil, fmt.Errorf("selection over %d registered providers: %w",
			e.registry.Len(), ErrNoCandidateAvailable)
	}

	decision.SelectedProvider = best
	decision.MatchedRules = e.matchingRuleNames(req, best)
	decision.Reasoning = append(decision.Reasoning,
		fmt.Sprintf("selected %s with score %.3f over %d candidates",
			best, bestScore, len(decision.ConsideredProviders)))

	e.logger.Printf("Selected provider %s (score=%.3f, candidates=%d)",
		best, bestScore, len(decision.ConsideredProviders))

	return best, decision, nil
}

// score computes the blended score for one provider.
func (e *SelectionEngine) score(req llm.Request, name string, profile llm.CapabilityProfile) ScoreBreakdown {
	metrics := e.metrics.Snapshot(name)

	b := ScoreBreakdown{
		CapabilityMatch:  capabilityMatch(req, profile),
		PerformanceScore: performanceScore(metrics),
		CostEfficiency:   costEfficiency(metrics),
		Reliability:      reliability(metrics),
	}
	b.Total = weightCapability*b.CapabilityMatch +
		weightPerformance*b.PerformanceScore +
		weightCost*b.CostEfficiency +
		weightReliability*b.Reliability
	return b
}

// capabilityMatch averages the language, task, and complexity fit, each
// term contributing 1.0 when satisfied and 0.0 otherwise.
func capabilityMatch(req llm.Request, profile llm.CapabilityProfile) float64 {
	languageTerm := 1.0
	for _, lang := range req.RequiredLanguages {
		if !profile.SupportsLanguage(lang) {
			languageTerm = 0.0
			break
		}
	}

	taskTerm := 0.0
	if profile.SupportsTask(req.TaskType) {
		taskTerm = 1.0
	}

	complexityTerm := 0.0
	if profile.MaxComplexity >= req.ComplexityLevel {
		complexityTerm = 1.0
	}

	return (languageTerm + taskTerm + complexityTerm) / 3.0
}

func performanceScore(m PerformanceMetrics) float64 {
	if m.TotalRequests == 0 {
		return neutralScore
	}
	latencyTerm := 1.0 - m.AverageResponseTimeMs/latencyCeilingMs
	if latencyTerm < 0 {
		latencyTerm = 0
	}
	return (latencyTerm + m.SuccessRate) / 2.0
}

func costEfficiency(m PerformanceMetrics) float64 {
	if m.TotalRequests == 0 {
		return neutralScore
	}
	efficiency := 1.0 / (m.AverageCostPerToken + 0.001)
	if efficiency > 1.0 {
		return 1.0
	}
	return efficiency
}

func reliability(m PerformanceMetrics) float64 {
	if m.TotalRequests == 0 {
		return neutralScore
	}
	inverseError := 1.0 - m.ErrorRate
	if inverseError < 0 {
		inverseError = 0
	}
	return (m.SuccessRate + inverseError) / 2.0
}

// matchingRuleNames evaluates the rule set in priority order and returns the
// names of rules whose condition holds for the selected pair. Rules carry no
// scoring effect yet; matches are surfaced in the decision record only.
func (e *SelectionEngine) matchingRuleNames(req llm.Request, provider string) []string {
	var matched []string
	for _, rule := range e.rules.Rules() {
		if rule.Matches(req, provider) {
			matched = append(matched, rule.Name)
		}
	}
	return matched
}

// Rules returns the rule set consulted by this engine.
func (e *SelectionEngine) Rules() *RuleSet {
	return e.rules
}
