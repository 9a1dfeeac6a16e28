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

package llm

import (
	"context"
)

// Provider is the unified interface for all backend providers.
// Implementations must be safe for concurrent use.
//
// The coordination core treats providers as opaque request -> response
// capabilities: health, transport, and prompt construction are the
// provider's concern.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// This is used for routing, logging, and metrics.
	Name() string

	// Execute generates a completion for the given request.
	// The context should be used for cancellation and timeout.
	// A returned error means the call itself failed and the request
	// is eligible for fallback to a different provider.
	Execute(ctx context.Context, req Request) (*Response, error)
}
