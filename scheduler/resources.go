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

// ResourceSnapshot is a point-in-time view of host utilization. Values are
// fractions in [0, 1].
type ResourceSnapshot struct {
	CPUUtilization    float64 `json:"cpu_utilization"`
	MemoryUtilization float64 `json:"memory_utilization"`
	DiskUtilization   float64 `json:"disk_utilization"`
}

// ResourceMonitor reports current host utilization. The planner queries it
// exactly once per scheduling decision.
type ResourceMonitor interface {
	Snapshot() ResourceSnapshot
}

// ResourceManager exposes per-resource budget fractions that the planner
// folds into a strategy's resource allocation.
type ResourceManager interface {
	Limits() map[string]float64
}

// StaticResourceMonitor returns a fixed snapshot. Useful for tests and for
// deployments without a metrics agent.
type StaticResourceMonitor struct {
	Usage ResourceSnapshot
}

func (m StaticResourceMonitor) Snapshot() ResourceSnapshot {
	return m.Usage
}

// StaticResourceManager returns a fixed limit table.
type StaticResourceManager struct {
	Budget map[string]float64
}

func (m StaticResourceManager) Limits() map[string]float64 {
	out := make(map[string]float64, len(m.Budget))
	for k, v := range m.Budget {
		out[k] = v
	}
	return out
}

// DefaultResourceManager grants the full budget for every tracked resource.
func DefaultResourceManager() ResourceManager {
	return StaticResourceManager{Budget: map[string]float64{
		"cpu":    1.0,
		"memory": 1.0,
		"disk":   1.0,
	}}
}
