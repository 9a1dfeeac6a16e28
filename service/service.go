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

// Package service exposes the coordination core over HTTP: request
// processing with fallback, provider status, workflow execution, batch
// scheduling and the adaptive rule loop.
package service

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"nexo/coordination/llm"
	"nexo/coordination/routing"
	"nexo/coordination/scheduler"
	"nexo/coordination/shared/logger"
	"nexo/coordination/workflow"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexo_coordination_requests_total",
			Help: "Total number of completion requests processed",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexo_coordination_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"type"},
	)
	promFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexo_coordination_fallbacks_total",
			Help: "Total number of requests that needed a fallback provider",
		},
	)
	promWorkflowRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexo_coordination_workflow_runs_total",
			Help: "Total number of workflow runs by final state",
		},
		[]string{"state"},
	)
	promBatchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexo_coordination_batch_items_total",
			Help: "Total number of batch items processed",
		},
		[]string{"status"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promFallbacksTotal)
	prometheus.MustRegister(promWorkflowRuns)
	prometheus.MustRegister(promBatchItems)
}

// Server bundles the coordination components behind an HTTP API.
type Server struct {
	registry    *llm.Registry
	engine      *routing.SelectionEngine
	coordinator *routing.Coordinator
	metrics     *routing.MetricsStore
	adaptive    *routing.AdaptiveRuleEngine
	workflows   *workflow.Engine
	batches     *scheduler.Scheduler
	logger      *logger.Logger

	allowedOrigins []string
}

type ServerOption func(*Server)

// WithAllowedOrigins sets the CORS origin allowlist. Defaults to "*".
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

func WithServerLogger(l *logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

func NewServer(
	registry *llm.Registry,
	engine *routing.SelectionEngine,
	coordinator *routing.Coordinator,
	metrics *routing.MetricsStore,
	adaptive *routing.AdaptiveRuleEngine,
	workflows *workflow.Engine,
	batches *scheduler.Scheduler,
	opts ...ServerOption,
) *Server {
	s := &Server{
		registry:       registry,
		engine:         engine,
		coordinator:    coordinator,
		metrics:        metrics,
		adaptive:       adaptive,
		workflows:      workflows,
		batches:        batches,
		logger:         logger.New("service"),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Metrics endpoints
	r.HandleFunc("/api/v1/metrics", s.metricsHandler).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	// Main processing endpoints
	r.HandleFunc("/api/v1/process", s.processHandler).Methods("POST")
	r.HandleFunc("/api/v1/select", s.selectHandler).Methods("POST")
	r.HandleFunc("/api/v1/batch", s.batchHandler).Methods("POST")

	// Provider management
	r.HandleFunc("/api/v1/providers/status", s.providerStatusHandler).Methods("GET")

	// Rule management
	r.HandleFunc("/api/v1/rules", s.listRulesHandler).Methods("GET")
	r.HandleFunc("/api/v1/rules/refresh", s.refreshRulesHandler).Methods("POST")

	// Workflow endpoints
	r.HandleFunc("/api/v1/workflows/execute", s.executeWorkflowHandler).Methods("POST")
	r.HandleFunc("/api/v1/workflows/runs/{id}", s.getRunHandler).Methods("GET")
	r.HandleFunc("/api/v1/workflows/runs", s.listRunsHandler).Methods("GET")

	return r
}

// Handler wraps the router with CORS middleware.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.Router())
}
