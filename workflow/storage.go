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

package workflow

import (
	"fmt"
	"sync"
)

// RunStorage persists workflow run records. The engine only needs an
// in-memory implementation; hosts that want durable run history implement
// this interface.
type RunStorage interface {
	SaveRun(run *RunResult) error
	GetRun(id string) (*RunResult, error)
	ListRunsByWorkflow(workflowName string) ([]*RunResult, error)
}

// InMemoryRunStorage is a thread-safe map-backed RunStorage.
type InMemoryRunStorage struct {
	mu   sync.RWMutex
	runs map[string]*RunResult
}

// NewInMemoryRunStorage creates an empty in-memory run store.
func NewInMemoryRunStorage() *InMemoryRunStorage {
	return &InMemoryRunStorage{
		runs: make(map[string]*RunResult),
	}
}

// SaveRun stores or replaces the run record.
func (s *InMemoryRunStorage) SaveRun(run *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

// GetRun returns the run with the given ID.
func (s *InMemoryRunStorage) GetRun(id string) (*RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return run, nil
}

// ListRunsByWorkflow returns every stored run for the named workflow.
func (s *InMemoryRunStorage) ListRunsByWorkflow(workflowName string) ([]*RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*RunResult
	for _, run := range s.runs {
		if run.WorkflowName == workflowName {
			runs = append(runs, run)
		}
	}
	return runs, nil
}
