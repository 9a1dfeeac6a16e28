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

// Package scheduler runs batches of completion requests with a planned
// concurrency degree derived from host resource utilization. Each item's
// outcome is timed and fed back into the routing metrics store.
package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"nexo/coordination/llm"
	"nexo/coordination/routing"
	"nexo/coordination/shared/logger"
)

// ItemProcessor handles one request of a batch. It must return a Response
// even on failure; the scheduler never interprets errors out of band.
type ItemProcessor func(ctx context.Context, req llm.Request) *llm.Response

// ItemResult pairs a processed request with its outcome and timing.
type ItemResult struct {
	Request      llm.Request   `json:"-"`
	Response     *llm.Response `json:"response"`
	DurationMs   float64       `json:"duration_ms"`
	MetricsKey   string        `json:"metrics_key"`
	GroupIndex   int           `json:"group_index"`
	OrderedIndex int           `json:"ordered_index"`
}

// BatchResult reports what a batch run produced, including partial results
// when the run was cancelled between groups.
type BatchResult struct {
	Strategy   ProcessingStrategy `json:"strategy"`
	Items      []ItemResult       `json:"items"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Cancelled  bool               `json:"cancelled"`
	DurationMs float64            `json:"duration_ms"`
	StartTime  time.Time          `json:"start_time"`
}

// Scheduler plans and executes request batches. Items inside a group run
// concurrently; groups run strictly one after another. A weighted semaphore
// sized by the planned parallelism bounds in-flight items across the whole
// batch.
type Scheduler struct {
	processor ItemProcessor
	planner   *Planner
	metrics   *routing.MetricsStore
	logger    *logger.Logger
}

type SchedulerOption func(*Scheduler)

// WithPlanner replaces the default planner.
func WithPlanner(p *Planner) SchedulerOption {
	return func(s *Scheduler) {
		if p != nil {
			s.planner = p
		}
	}
}

func WithSchedulerLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(processor ItemProcessor, metrics *routing.MetricsStore, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		processor: processor,
		planner:   NewPlanner(nil, nil),
		metrics:   metrics,
		logger:    logger.New("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute plans a strategy for the batch and runs it. Cancellation is
// cooperative: the context is checked between groups only, so an in-flight
// item always runs to completion. One item's failure never stops its
// siblings.
func (s *Scheduler) Execute(ctx context.Context, requests []llm.Request) (*BatchResult, error) {
	if s.processor == nil {
		return nil, fmt.Errorf("scheduler: no item processor configured")
	}

	start := time.Now()
	strategy := s.planner.PlanStrategy(requests)
	result := &BatchResult{
		Strategy:  strategy,
		Items:     make([]ItemResult, 0, len(requests)),
		StartTime: start,
	}
	if len(requests) == 0 {
		return result, nil
	}

	// One gate for the whole batch, not per group.
	gate := semaphore.NewWeighted(int64(strategy.MaxParallelism))
	ordered := strategy.ProcessingOrder

	groupIndex := 0
	for offset := 0; offset < len(ordered); offset += strategy.BatchSize {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			s.logger.Warn("", "batch cancelled between groups", map[string]any{
				"completed_items": len(result.Items),
				"total_items":     len(ordered),
				"group":           groupIndex,
			})
			break
		}

		end := offset + strategy.BatchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		group := ordered[offset:end]

		groupItems := make([]ItemResult, len(group))
		var wg sync.WaitGroup
		for i, req := range group {
			wg.Add(1)
			go func(slot int, req llm.Request, orderedIndex int) {
				defer wg.Done()
				// Background context so a cancel mid-group does not
				// abort the acquire; cancellation is group-boundary only.
				if err := gate.Acquire(context.Background(), 1); err != nil {
					return
				}
				defer gate.Release(1)
				groupItems[slot] = s.runItem(ctx, req, groupIndex, orderedIndex)
			}(i, req, offset+i)
		}
		wg.Wait()

		for _, item := range groupItems {
			result.Items = append(result.Items, item)
			if item.Response != nil && item.Response.Success {
				result.Succeeded++
			} else {
				result.Failed++
			}
		}
		groupIndex++
	}

	result.DurationMs = float64(time.Since(start).Milliseconds())
	s.logger.InfoWithDuration("", "batch finished", result.DurationMs, map[string]any{
		"items":     len(result.Items),
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"cancelled": result.Cancelled,
	})
	return result, nil
}

func (s *Scheduler) runItem(ctx context.Context, req llm.Request, group, orderedIndex int) ItemResult {
	key := syntheticMetricsKey(req)

	itemStart := time.Now()
	resp := s.processor(ctx, req)
	durationMs := float64(time.Since(itemStart).Milliseconds())

	if resp == nil {
		resp = &llm.Response{Success: false, ErrorMessage: "processor returned no response"}
	}
	if s.metrics != nil {
		s.metrics.RecordOutcome(key, durationMs, resp.Success, int64(resp.TokensUsed), resp.Cost)
	}

	return ItemResult{
		Request:      req,
		Response:     resp,
		DurationMs:   durationMs,
		MetricsKey:   key,
		GroupIndex:   group,
		OrderedIndex: orderedIndex,
	}
}

// syntheticMetricsKey identifies an item in the metrics store by its content
// hash and token limit, since batch items have no provider name of their own.
func syntheticMetricsKey(req llm.Request) string {
	h := fnv.New32a()
	h.Write([]byte(req.Input))
	return fmt.Sprintf("batch-%08x-%d", h.Sum32(), req.MaxTokens)
}
