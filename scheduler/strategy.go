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

package scheduler

import (
	"runtime"
	"sort"

	"nexo/coordination/llm"
	"nexo/coordination/shared/logger"
)

// PriorityLevel classifies a batch by its aggregate complexity.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityNormal PriorityLevel = "normal"
	PriorityHigh   PriorityLevel = "high"
)

const (
	cpuHighWatermark = 0.8
	cpuLowWatermark  = 0.3

	complexityHalveThreshold  = 0.7
	complexityHighThreshold   = 0.8
	complexityNormalThreshold = 0.5

	maxBatchSize = 10

	// Normalization ceilings for the complexity blend.
	inputLengthCeiling     = 2000.0
	tokenRequestCeiling    = 4000.0
	metadataEntriesCeiling = 10.0

	// Rough per-group wall clock, used only for the duration estimate.
	estimatedGroupMs = 2000
)

// ProcessingStrategy is the plan for one batch. It is computed fresh per
// batch and never mutated after creation.
type ProcessingStrategy struct {
	MaxParallelism      int                `json:"max_parallelism"`
	BatchSize           int                `json:"batch_size"`
	ProcessingOrder     []llm.Request      `json:"-"`
	ResourceAllocation  map[string]float64 `json:"resource_allocation"`
	EstimatedDurationMs int64              `json:"estimated_duration_ms"`
	Priority            PriorityLevel      `json:"priority"`
	ComplexityScore     float64            `json:"complexity_score"`
}

// Planner derives a ProcessingStrategy from the batch shape and a single
// resource snapshot taken at planning time.
type Planner struct {
	monitor   ResourceMonitor
	manager   ResourceManager
	coreCount int
	logger    *logger.Logger
}

type PlannerOption func(*Planner)

// WithCoreCount overrides the detected core count. Intended for tests.
func WithCoreCount(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.coreCount = n
		}
	}
}

func WithPlannerLogger(l *logger.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = l
	}
}

func NewPlanner(monitor ResourceMonitor, manager ResourceManager, opts ...PlannerOption) *Planner {
	if monitor == nil {
		monitor = StaticResourceMonitor{}
	}
	if manager == nil {
		manager = DefaultResourceManager()
	}
	p := &Planner{
		monitor:   monitor,
		manager:   manager,
		coreCount: runtime.NumCPU(),
		logger:    logger.New("scheduler"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlanStrategy computes the concurrency degree, batch size, processing order
// and priority for one batch of requests.
func (p *Planner) PlanStrategy(requests []llm.Request) ProcessingStrategy {
	snapshot := p.monitor.Snapshot()
	complexity := complexityScore(requests)

	parallelism := p.coreCount
	if snapshot.CPUUtilization > cpuHighWatermark {
		parallelism /= 2
	}
	// Utilization below the low watermark leaves parallelism at the core
	// count; there is no meaningful ceiling to raise it toward.
	if complexity > complexityHalveThreshold {
		parallelism /= 2
	}
	if parallelism < 1 {
		parallelism = 1
	}

	batchSize := len(requests) / parallelism
	if batchSize < 1 {
		batchSize = 1
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	order := make([]llm.Request, len(requests))
	copy(order, requests)
	// Shortest inputs first; stable so equal lengths keep caller order.
	sort.SliceStable(order, func(i, j int) bool {
		return len(order[i].Input) < len(order[j].Input)
	})

	groups := len(requests) / batchSize
	if len(requests)%batchSize != 0 {
		groups++
	}

	strategy := ProcessingStrategy{
		MaxParallelism:      parallelism,
		BatchSize:           batchSize,
		ProcessingOrder:     order,
		ResourceAllocation:  p.allocate(snapshot),
		EstimatedDurationMs: int64(groups) * estimatedGroupMs,
		Priority:            priorityFor(complexity),
		ComplexityScore:     complexity,
	}

	p.logger.Info("", "planned batch strategy", map[string]any{
		"requests":        len(requests),
		"max_parallelism": strategy.MaxParallelism,
		"batch_size":      strategy.BatchSize,
		"priority":        strategy.Priority,
		"complexity":      complexity,
		"cpu_utilization": snapshot.CPUUtilization,
	})

	return strategy
}

// allocate scales the manager's budget by the headroom left on each tracked
// resource.
func (p *Planner) allocate(snapshot ResourceSnapshot) map[string]float64 {
	headroom := map[string]float64{
		"cpu":    1 - snapshot.CPUUtilization,
		"memory": 1 - snapshot.MemoryUtilization,
		"disk":   1 - snapshot.DiskUtilization,
	}

	allocation := make(map[string]float64)
	for resource, limit := range p.manager.Limits() {
		share, tracked := headroom[resource]
		if !tracked {
			share = 1
		}
		if share < 0 {
			share = 0
		}
		allocation[resource] = limit * share
	}
	return allocation
}

// complexityScore blends average input length, the largest token request and
// metadata density into a [0, 1] score.
func complexityScore(requests []llm.Request) float64 {
	if len(requests) == 0 {
		return 0
	}

	var totalLen, totalMeta float64
	var maxTokens int
	for _, req := range requests {
		totalLen += float64(len(req.Input))
		totalMeta += float64(len(req.Metadata))
		if req.MaxTokens > maxTokens {
			maxTokens = req.MaxTokens
		}
	}

	lengthPart := clamp01(totalLen / float64(len(requests)) / inputLengthCeiling)
	tokenPart := clamp01(float64(maxTokens) / tokenRequestCeiling)
	metaPart := clamp01(totalMeta / float64(len(requests)) / metadataEntriesCeiling)

	return 0.5*lengthPart + 0.3*tokenPart + 0.2*metaPart
}

func priorityFor(complexity float64) PriorityLevel {
	switch {
	case complexity > complexityHighThreshold:
		return PriorityHigh
	case complexity > complexityNormalThreshold:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
