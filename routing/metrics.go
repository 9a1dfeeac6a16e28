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
	"sync"
	"time"
)

// PerformanceMetrics holds the running performance counters for one provider.
// Counters accumulate for the process lifetime and are never destroyed.
type PerformanceMetrics struct {
	TotalRequests           int64   `json:"total_requests"`
	SuccessfulRequests      int64   `json:"successful_requests"`
	FailedRequests          int64   `json:"failed_requests"`
	TotalProcessingTimeMs   float64 `json:"total_processing_time_ms"`
	AverageResponseTimeMs   float64 `json:"average_response_time_ms"`
	SuccessRate             float64 `json:"success_rate"`
	ErrorRate               float64 `json:"error_rate"`
	TotalTokens             int64   `json:"total_tokens"`
	AverageTokensPerRequest float64 `json:"average_tokens_per_request"`
	TotalCost               float64 `json:"total_cost"`
	AverageCostPerToken     float64 `json:"average_cost_per_token"`
	LastUpdated             time.Time `json:"last_updated"`
}

// MetricsStore collects per-provider performance counters.
//
// All access, reads included, goes through one exclusive lock. The mutation
// rate is low relative to provider I/O latency, so a coarse lock keeps the
// scoring path strictly consistent with recorded outcomes.
type MetricsStore struct {
	metrics map[string]*PerformanceMetrics
	mu      sync.Mutex
}

// NewMetricsStore creates an empty metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		metrics: make(map[string]*PerformanceMetrics),
	}
}

// RecordOutcome records one provider invocation. It increments the request
// counters, recomputes the response-time average and success/error rates,
// and accumulates tokens and cost when they were reported.
func (s *MetricsStore) RecordOutcome(provider string, durationMs float64, success bool, tokensUsed int64, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.metrics[provider]
	if !exists {
		m = &PerformanceMetrics{}
		s.metrics[provider] = m
	}

	m.TotalRequests++
	m.TotalProcessingTimeMs += durationMs
	m.AverageResponseTimeMs = m.TotalProcessingTimeMs / float64(m.TotalRequests)

	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}
	m.SuccessRate = float64(m.SuccessfulRequests) / float64(m.TotalRequests)
	m.ErrorRate = float64(m.FailedRequests) / float64(m.TotalRequests)

	if tokensUsed > 0 {
		m.TotalTokens += tokensUsed
		m.AverageTokensPerRequest = float64(m.TotalTokens) / float64(m.TotalRequests)
	}
	if cost > 0 {
		m.TotalCost += cost
		// Guard against division by zero when only cost was reported.
		if m.TotalTokens > 0 {
			m.AverageCostPerToken = m.TotalCost / float64(m.TotalTokens)
		}
	}

	m.LastUpdated = time.Now()
}

// Snapshot returns a copy of the counters for one provider. Providers with
// no recorded outcomes yield a zero-valued snapshot.
func (s *MetricsStore) Snapshot(provider string) PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, exists := s.metrics[provider]; exists {
		return *m
	}
	return PerformanceMetrics{}
}

// All returns a copy of the counters for every provider with recorded
// outcomes.
func (s *MetricsStore) All() map[string]PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]PerformanceMetrics, len(s.metrics))
	for name, m := range s.metrics {
		out[name] = *m
	}
	return out
}
