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

package service

import (
	"context"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"nexo/coordination/config"
	"nexo/coordination/llm"
	"nexo/coordination/routing"
	"nexo/coordination/scheduler"
	"nexo/coordination/workflow"
)

// Run wires the coordination components from the config file and serves the
// HTTP API. It blocks until the server exits.
//
// Environment Variables:
//
//	CONFIG_FILE - path to the YAML config file (default: coordination.yaml)
//	PORT - overrides the configured listen address
func Run() {
	log.Println("Starting Nexo coordination service...")

	configPath := getEnv("CONFIG_FILE", "coordination.yaml")
	loader, err := config.NewYAMLLoader(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	profiles, err := loader.LoadProfiles()
	if err != nil {
		log.Fatalf("Failed to load provider catalog: %v", err)
	}
	if len(profiles) == 0 {
		log.Fatal("No enabled providers in the catalog")
	}

	registry := llm.NewRegistry()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	// Map iteration order is random; keep registration deterministic so
	// tie-breaks are stable across restarts.
	sort.Strings(names)
	for _, name := range names {
		profile := profiles[name]
		provider := llm.NewStaticProvider(name, 50*time.Millisecond, profile.CostPerToken)
		if err := registry.Register(name, provider, profile); err != nil {
			log.Fatalf("Failed to register provider %s: %v", name, err)
		}
	}

	metrics := routing.NewMetricsStore()
	engine := routing.NewSelectionEngine(registry, metrics)

	routingCfg := loader.Routing()
	var coordinatorOpts []routing.CoordinatorOption
	if routingCfg.DefaultProvider != "" {
		coordinatorOpts = append(coordinatorOpts, routing.WithDefaultProvider(routingCfg.DefaultProvider))
	}
	coordinator := routing.NewCoordinator(registry, engine, metrics, coordinatorOpts...)

	var adaptiveOpts []routing.AdaptiveOption
	if routingCfg.CostCeiling > 0 {
		adaptiveOpts = append(adaptiveOpts, routing.WithCostCeiling(routingCfg.CostCeiling))
	}
	adaptive := routing.NewAdaptiveRuleEngine(metrics, engine.Rules(), adaptiveOpts...)

	workflows := workflow.NewEngine(coordinator, workflow.WithRunStorage(workflow.NewInMemoryRunStorage()))

	processor := func(ctx context.Context, req llm.Request) *llm.Response {
		return coordinator.ExecuteWithFallback(ctx, req)
	}
	batches := scheduler.NewScheduler(processor, metrics)

	serverCfg := loader.Server()
	srv := NewServer(registry, engine, coordinator, metrics, adaptive, workflows, batches,
		WithAllowedOrigins(serverCfg.AllowedOrigins))

	addr := serverCfg.ListenAddr
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	log.Printf("Nexo coordination service listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, srv.Handler()))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
