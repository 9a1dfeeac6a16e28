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
	"fmt"
	"time"
)

// StaticProvider is a canned Provider for demos and tests. It never calls
// out anywhere; it answers with a fixed prefix and bills by input length.
type StaticProvider struct {
	name         string
	latency      time.Duration
	costPerToken float64
}

// NewStaticProvider creates a provider that answers after the given
// simulated latency.
func NewStaticProvider(name string, latency time.Duration, costPerToken float64) *StaticProvider {
	return &StaticProvider{
		name:         name,
		latency:      latency,
		costPerToken: costPerToken,
	}
}

func (p *StaticProvider) Name() string { return p.name }

// Execute returns a canned response. It honors context cancellation during
// the simulated latency.
func (p *StaticProvider) Execute(ctx context.Context, req Request) (*Response, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, NewProviderError(p.name, ErrCodeTimeout, ctx.Err().Error())
		}
	}

	// Rough token estimate: four characters per token.
	tokens := len(req.Input)/4 + 1
	if req.MaxTokens > 0 && tokens > req.MaxTokens {
		tokens = req.MaxTokens
	}

	return &Response{
		Content:    fmt.Sprintf("[%s] processed: %s", p.name, req.Input),
		Success:    true,
		ModelUsed:  p.name,
		TokensUsed: tokens,
		Cost:       float64(tokens) * p.costPerToken,
	}, nil
}
