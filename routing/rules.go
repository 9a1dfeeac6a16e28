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
	"sort"
	"strconv"
	"sync"
	"time"

	"nexo/coordination/llm"
)

// RuleKind identifies the condition a selection rule evaluates. Rules are
// tagged variants rather than closures so they stay serializable and
// inspectable.
type RuleKind string

const (
	// RuleKindAlways matches every (request, provider) pair. Dynamic
	// rules installed by the adaptive engine use this kind as a slot
	// for future heuristics.
	RuleKindAlways RuleKind = "always"

	// RuleKindTaskEquals matches requests whose task type equals
	// Params["task"].
	RuleKindTaskEquals RuleKind = "task_equals"

	// RuleKindProviderEquals matches the provider named in
	// Params["provider"].
	RuleKindProviderEquals RuleKind = "provider_equals"

	// RuleKindMinComplexity matches requests whose complexity level is
	// at least Params["complexity"].
	RuleKindMinComplexity RuleKind = "min_complexity"
)

// SelectionRule is one entry in the rule set consulted during provider
// selection. Lower Priority means higher precedence.
type SelectionRule struct {
	Name        string            `json:"name"`
	Priority    int               `json:"priority"`
	Kind        RuleKind          `json:"kind"`
	Params      map[string]string `json:"params,omitempty"`
	IsDynamic   bool              `json:"is_dynamic"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Matches evaluates the rule condition against a request/provider pair.
func (r SelectionRule) Matches(req llm.Request, provider string) bool {
	switch r.Kind {
	case RuleKindAlways:
		return true
	case RuleKindTaskEquals:
		return req.TaskType == r.Params["task"]
	case RuleKindProviderEquals:
		return provider == r.Params["provider"]
	case RuleKindMinComplexity:
		min, err := strconv.Atoi(r.Params["complexity"])
		if err != nil {
			return false
		}
		return req.ComplexityLevel >= min
	default:
		return false
	}
}

// RuleSet is the mutable, mutex-guarded collection of selection rules.
// Built-in (non-dynamic) rules are never pruned.
type RuleSet struct {
	rules []SelectionRule
	mu    sync.Mutex
}

// NewRuleSet creates a rule set seeded with the given built-in rules.
func NewRuleSet(builtin ...SelectionRule) *RuleSet {
	rs := &RuleSet{}
	rs.rules = append(rs.rules, builtin...)
	return rs
}

// Add appends a rule to the set.
func (s *RuleSet) Add(rule SelectionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
}

// Remove deletes the rule with the given name. It reports whether a rule
// was removed.
func (s *RuleSet) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.Name == name {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

// PruneDynamic removes every dynamic rule whose LastUpdated is older than
// the staleness window. Built-in rules are left untouched. It returns the
// number of rules removed.
func (s *RuleSet) PruneDynamic(staleness time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-staleness)
	kept := s.rules[:0]
	removed := 0
	for _, r := range s.rules {
		if r.IsDynamic && r.LastUpdated.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.rules = kept
	return removed
}

// Rules returns a copy of the current rules sorted by priority
// (lower first), ties kept in insertion order.
func (s *RuleSet) Rules() []SelectionRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SelectionRule, len(s.rules))
	copy(out, s.rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}
