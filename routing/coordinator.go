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
	"log"
	"os"
	"time"

	"nexo/coordination/llm"
)

// maxAttempts bounds the fallback protocol: the first-choice provider plus
// at most one retry on a different provider.
const maxAttempts = 2

// Coordinator drives provider selection and execution. On a failed provider
// call it re-selects with the failed provider excluded and retries exactly
// once; exhausted fallback surfaces as a failed Response, never as an error.
type Coordinator struct {
	registry        *llm.Registry
	engine          *SelectionEngine
	metrics         *MetricsStore
	defaultProvider string
	logger          *log.Logger
}

// CoordinatorOption configures the coordinator.
type CoordinatorOption func(*Coordinator)

// WithDefaultProvider names the provider used when selection finds no
// eligible candidate. Empty means no default.
func WithDefaultProvider(name string) CoordinatorOption {
	return func(c *Coordinator) {
		c.defaultProvider = name
	}
}

// WithCoordinatorLogger sets the logger for the coordinator.
func WithCoordinatorLogger(l *log.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator creates an execution coordinator. The engine must be built
// over the same registry and metrics store.
func NewCoordinator(registry *llm.Registry, engine *SelectionEngine, metrics *MetricsStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry: registry,
		engine:   engine,
		metrics:  metrics,
		logger:   log.New(os.Stdout, "[COORDINATOR] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ExecuteWithFallback selects a provider, invokes it, and records the
// outcome. A failed provider call is retried once against a different
// provider; the exclusion set accumulates across attempts, so the retry can
// never land on the provider that just failed. All failures come back as a
// failed Response.
func (c *Coordinator) ExecuteWithFallback(ctx context.Context, req llm.Request) *llm.Response {
	excluded := make(map[string]bool)
	var lastErr error
	var lastResp *llm.Response

	for attempt := 0; attempt < maxAttempts; attempt++ {
		name, err := c.pickProvider(req, excluded)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		provider, err := c.registry.Get(name)
		if err != nil {
			// Registry entry without a usable instance: exclude and
			// let re-selection try the rest.
			c.logger.Printf("Provider %q unusable: %v", name, err)
			excluded[name] = true
			lastErr = err
			continue
		}

		start := time.Now()
		resp, err := provider.Execute(ctx, req)
		elapsedMs := float64(time.Since(start).Milliseconds())

		if err != nil {
			c.metrics.RecordOutcome(name, elapsedMs, false, 0, 0)
			c.logger.Printf("Provider %s failed after %.0fms: %v (attempt %d/%d)",
				name, elapsedMs, err, attempt+1, maxAttempts)
			excluded[name] = true
			lastErr = err
			continue
		}

		c.metrics.RecordOutcome(name, elapsedMs, resp.Success,
			int64(resp.TokensUsed), resp.Cost)

		resp.ModelUsed = name
		resp.ProcessingTimeMs = int64(elapsedMs)

		// A provider can report failure in-band instead of returning an
		// error. Treat it the same: exclude and retry.
		if !resp.Success {
			c.logger.Printf("Provider %s reported failure after %.0fms (attempt %d/%d)",
				name, elapsedMs, attempt+1, maxAttempts)
			excluded[name] = true
			lastResp = resp
			continue
		}

		resp.FallbackUsed = attempt > 0
		return resp
	}

	if lastResp != nil {
		lastResp.FallbackUsed = len(excluded) > 1
		return lastResp
	}

	message := "no provider available"
	if lastErr != nil {
		message = lastErr.Error()
	}
	return &llm.Response{
		Success:      false,
		ErrorMessage: message,
		// True once any provider actually failed; a request that never
		// reached a provider reports no fallback.
		FallbackUsed: len(excluded) > 0,
	}
}

// pickProvider runs selection with the accumulated exclusion set, falling
// back to the configured default provider when selection finds no candidate.
func (c *Coordinator) pickProvider(req llm.Request, excluded map[string]bool) (string, error) {
	name, _, err := c.engine.SelectOptimal(req, excluded)
	if err == nil {
		return name, nil
	}

	if errors.Is(err, ErrNoCandidateAvailable) &&
		c.defaultProvider != "" && !excluded[c.defaultProvider] {
		c.logger.Printf("Selection found no candidate, using default provider %q", c.defaultProvider)
		return c.defaultProvider, nil
	}

	return "", err
}

// Metrics returns the metrics store outcomes are recorded into.
func (c *Coordinator) Metrics() *MetricsStore {
	return c.metrics
}
