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
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

// Bottleneck thresholds. A provider beyond any of these gets a high-priority
// performance recommendation.
const (
	latencyThresholdMs   = 5000.0
	successRateThreshold = 0.9
	defaultCostCeiling   = 0.01

	// ruleStaleness is the window after which dynamic rules are pruned.
	ruleStaleness = time.Hour
)

// Recommendation describes one bottleneck found during metrics analysis.
type Recommendation struct {
	Provider string `json:"provider"`
	Category string `json:"category"` // "performance" or "cost"
	Priority string `json:"priority"` // "high"
	Message  string `json:"message"`
}

// BottleneckReport is the outcome of one adaptive refresh pass.
type BottleneckReport struct {
	GeneratedAt      time.Time        `json:"generated_at"`
	Findings         []Recommendation `json:"findings"`
	RulesPruned      int              `json:"rules_pruned"`
	RulesAdded       int              `json:"rules_added"`
	ProvidersScanned int              `json:"providers_scanned"`
}

// AdaptiveRuleEngine periodically inspects the metrics store, derives
// bottleneck recommendations, and mutates the dynamic portion of the rule
// set consulted by selection. Built-in rules are never touched.
//
// The engine is caller-triggered: the hosting application decides the cadence
// and calls Refresh.
type AdaptiveRuleEngine struct {
	metrics     *MetricsStore
	rules       *RuleSet
	costCeiling float64
	logger      *log.Logger
}

// AdaptiveOption configures the adaptive rule engine.
type AdaptiveOption func(*AdaptiveRuleEngine)

// WithCostCeiling overrides the average cost-per-token ceiling used in
// bottleneck analysis.
func WithCostCeiling(ceiling float64) AdaptiveOption {
	return func(e *AdaptiveRuleEngine) {
		e.costCeiling = ceiling
	}
}

// WithAdaptiveLogger sets the logger for the adaptive engine.
func WithAdaptiveLogger(l *log.Logger) AdaptiveOption {
	return func(e *AdaptiveRuleEngine) {
		e.logger = l
	}
}

// NewAdaptiveRuleEngine creates the adaptive loop over a metrics store and
// the rule set shared with the selection engine.
func NewAdaptiveRuleEngine(metrics *MetricsStore, rules *RuleSet, opts ...AdaptiveOption) *AdaptiveRuleEngine {
	e := &AdaptiveRuleEngine{
		metrics:     metrics,
		rules:       rules,
		costCeiling: defaultCostCeiling,
		logger:      log.New(os.Stdout, "[ADAPTIVE] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Analyze scans the metrics store and returns the current bottleneck
// findings without mutating the rule set.
func (e *AdaptiveRuleEngine) Analyze() []Recommendation {
	var findings []Recommendation

	for provider, m := range e.metrics.All() {
		if m.TotalRequests == 0 {
			continue
		}

		if m.AverageResponseTimeMs > latencyThresholdMs {
			findings = append(findings, Recommendation{
				Provider: provider,
				Category: "performance",
				Priority: "high",
				Message: fmt.Sprintf("average latency %.0fms exceeds %.0fms",
					m.AverageResponseTimeMs, latencyThresholdMs),
			})
		}
		if m.SuccessRate < successRateThreshold {
			findings = append(findings, Recommendation{
				Provider: provider,
				Category: "performance",
				Priority: "high",
				Message: fmt.Sprintf("success rate %.2f below %.2f",
					m.SuccessRate, successRateThreshold),
			})
		}
		if m.AverageCostPerToken > e.costCeiling {
			findings = append(findings, Recommendation{
				Provider: provider,
				Category: "cost",
				Priority: "high",
				Message: fmt.Sprintf("average cost per token %.5f above ceiling %.5f",
					m.AverageCostPerToken, e.costCeiling),
			})
		}
	}

	return findings
}

// Refresh runs one adaptive pass: prune stale dynamic rules, analyze the
// metrics store, and install one dynamic rule per high-priority finding.
// Installed rules carry a trivially-true condition; they are slots for
// future refinement, not active filters.
func (e *AdaptiveRuleEngine) Refresh() *BottleneckReport {
	report := &BottleneckReport{
		GeneratedAt:      time.Now(),
		ProvidersScanned: len(e.metrics.All()),
	}

	report.RulesPruned = e.rules.PruneDynamic(ruleStaleness)
	report.Findings = e.Analyze()

	for _, finding := range report.Findings {
		if finding.Priority != "high" {
			continue
		}
		rule := SelectionRule{
			Name:        fmt.Sprintf("dyn-%s-%s-%s", finding.Category, finding.Provider, uuid.NewString()[:8]),
			Priority:    1,
			Kind:        RuleKindAlways,
			Params:      map[string]string{"provider": finding.Provider, "category": finding.Category},
			IsDynamic:   true,
			LastUpdated: time.Now(),
		}
		e.rules.Add(rule)
		report.RulesAdded++
	}

	e.logger.Printf("Adaptive refresh: scanned=%d findings=%d pruned=%d added=%d",
		report.ProvidersScanned, len(report.Findings), report.RulesPruned, report.RulesAdded)

	return report
}
