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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"nexo/coordination/llm"
	"nexo/coordination/routing"
	"nexo/coordination/workflow"
)

type errorResponse struct {
	Error string `json:"error"`
}

type providerStatus struct {
	Name    string                     `json:"name"`
	Profile llm.CapabilityProfile      `json:"profile"`
	Metrics routing.PerformanceMetrics `json:"metrics"`
}

type batchRequest struct {
	Requests []llm.Request `json:"requests"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"providers":       s.registry.Len(),
		"workflow_engine": s.workflows.IsHealthy(),
		"timestamp":       time.Now().UTC(),
	})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.All())
}

func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	var req llm.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input must not be empty")
		return
	}

	start := time.Now()
	resp := s.coordinator.ExecuteWithFallback(r.Context(), req)
	durationMs := float64(time.Since(start).Milliseconds())

	status := "success"
	if !resp.Success {
		status = "failure"
	}
	promRequestsTotal.WithLabelValues(status).Inc()
	promRequestDuration.WithLabelValues("process").Observe(durationMs)
	if resp.FallbackUsed {
		promFallbacksTotal.Inc()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var req llm.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	_, decision, err := s.engine.SelectOptimal(req, nil)
	if err != nil {
		if errors.Is(err, routing.ErrNoCandidateAvailable) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) batchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}

	result, err := s.batches.Execute(r.Context(), req.Requests)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	promBatchItems.WithLabelValues("success").Add(float64(result.Succeeded))
	promBatchItems.WithLabelValues("failure").Add(float64(result.Failed))

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) providerStatusHandler(w http.ResponseWriter, r *http.Request) {
	statuses := make([]providerStatus, 0, s.registry.Len())
	for _, name := range s.registry.Names() {
		profile, _ := s.registry.Profile(name)
		statuses = append(statuses, providerStatus{
			Name:    name,
			Profile: profile,
			Metrics: s.metrics.Snapshot(name),
		})
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Rules().Rules())
}

func (s *Server) refreshRulesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.adaptive.Refresh())
}

func (s *Server) executeWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	var def workflow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	start := time.Now()
	run, err := s.workflows.Run(r.Context(), def)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	promWorkflowRuns.WithLabelValues(string(run.State)).Inc()
	promRequestDuration.WithLabelValues("workflow").Observe(float64(time.Since(start).Milliseconds()))

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.workflows.GetRun(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("workflow")
	if name == "" {
		writeError(w, http.StatusBadRequest, "workflow query parameter is required")
		return
	}
	runs, err := s.workflows.ListRuns(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
