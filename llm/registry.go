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
	"fmt"
	"log"
	"os"
	"sync"
)

// Registry manages provider instances and their capability profiles.
// It is thread-safe for concurrent access.
//
// Registration order is preserved and exposed through Names; the selection
// engine relies on it for deterministic tie-breaking, so two registries
// built from the same catalog rank providers identically.
type Registry struct {
	providers map[string]Provider
	profiles  map[string]CapabilityProfile
	order     []string
	logger    *log.Logger
	mu        sync.RWMutex
}

// RegistryOption configures the registry during creation.
type RegistryOption func(*Registry)

// WithLogger sets a custom logger for the registry.
func WithLogger(logger *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new provider registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		profiles:  make(map[string]CapabilityProfile),
		logger:    log.New(os.Stdout, "[REGISTRY] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a provider with its capability profile. Registering a name
// that already exists is an error; use UpdateProfile to change an existing
// profile.
func (r *Registry) Register(name string, provider Provider, profile CapabilityProfile) error {
	if name == "" {
		return fmt.Errorf("provider name must not be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider %q is nil", name)
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile for provider %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	r.providers[name] = provider
	r.profiles[name] = profile
	r.order = append(r.order, name)

	r.logger.Printf("Registered provider %q (tasks=%v, max_complexity=%d)",
		name, profile.SupportedTasks, profile.MaxComplexity)
	return nil
}

// UpdateProfile replaces the capability profile of a registered provider.
// This is the only way a profile changes after registration.
func (r *Registry) UpdateProfile(name string, profile CapabilityProfile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile for provider %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[name]; !exists {
		return fmt.Errorf("provider %q not registered", name)
	}

	r.profiles[name] = profile
	r.logger.Printf("Updated profile for provider %q", name)
	return nil
}

// Get returns the provider instance registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return provider, nil
}

// Profile returns the capability profile registered under name.
func (r *Registry) Profile(name string) (CapabilityProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[name]
	return profile, exists
}

// Names returns all registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
