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

// Package llm provides the provider abstraction and capability registry for
// the Nexo coordination core. It defines the common request/response types
// used across all backend integrations, enabling pluggable provider
// implementations.
package llm

import (
	"fmt"
)

// Request encapsulates all parameters for a completion request.
// This is the unified request type routed across all providers.
type Request struct {
	// Input is the text the provider should process.
	Input string `json:"input"`

	// RequiredLanguages lists languages the provider must support
	// for this request. Empty means no language requirement.
	RequiredLanguages []string `json:"required_languages,omitempty"`

	// TaskType identifies the kind of work requested
	// (e.g., "code-generation", "analysis", "summarization").
	TaskType string `json:"task_type"`

	// ComplexityLevel rates the request difficulty from 1 (trivial)
	// to 5 (expert). Providers declare the maximum they handle.
	ComplexityLevel int `json:"complexity_level"`

	// MaxTokens limits the maximum number of tokens in the response.
	// If 0, provider defaults are used.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64 `json:"temperature,omitempty"`

	// PostProcessing lists transformations to apply to the generated
	// content, in order.
	PostProcessing []PostProcessingStep `json:"post_processing,omitempty"`

	// Metadata contains caller-specific options not covered by the
	// standard fields.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PostProcessingStep describes one content transformation applied after
// generation.
type PostProcessingStep struct {
	// Type identifies the transformation (e.g., "trim", "validate").
	Type string `json:"type"`

	// Parameters configure the transformation.
	Parameters map[string]string `json:"parameters,omitempty"`
}

// PostProcessingOutcome records the result of one post-processing step.
type PostProcessingOutcome struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Response contains the result of a completion request, whether it was
// served by the first-choice provider or a fallback.
type Response struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Success indicates whether the request completed normally.
	Success bool `json:"success"`

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string `json:"error_message,omitempty"`

	// ModelUsed is the name of the provider that served the request.
	ModelUsed string `json:"model_used"`

	// ProcessingTimeMs is the wall-clock duration of the provider call.
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	// TokensUsed is the total token count reported by the provider.
	TokensUsed int `json:"tokens_used"`

	// Cost is the monetary cost of the request.
	Cost float64 `json:"cost"`

	// PostProcessing records the outcome of each post-processing step.
	PostProcessing []PostProcessingOutcome `json:"post_processing,omitempty"`

	// FallbackUsed indicates a retry against a different provider
	// happened (or was exhausted) while serving this request.
	FallbackUsed bool `json:"fallback_used,omitempty"`
}

// CapabilityProfile declares what a provider can handle. Profiles are owned
// by the Registry and immutable once registered except through an explicit
// UpdateProfile call.
type CapabilityProfile struct {
	// SupportedLanguages lists languages the provider handles.
	SupportedLanguages []string `json:"supported_languages"`

	// SupportedTasks lists task types the provider handles.
	SupportedTasks []string `json:"supported_tasks"`

	// MaxComplexity is the highest complexity level (1-5) the provider
	// is rated for.
	MaxComplexity int `json:"max_complexity"`

	// MaxTokens is the provider's token ceiling per request.
	MaxTokens int `json:"max_tokens"`

	// CostPerToken is the provider's price per token.
	CostPerToken float64 `json:"cost_per_token"`
}

// SupportsLanguage reports whether the profile lists the given language.
func (p CapabilityProfile) SupportsLanguage(language string) bool {
	for _, l := range p.SupportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// SupportsTask reports whether the profile lists the given task type.
func (p CapabilityProfile) SupportsTask(task string) bool {
	for _, t := range p.SupportedTasks {
		if t == task {
			return true
		}
	}
	return false
}

// Validate checks the profile for out-of-range fields.
func (p CapabilityProfile) Validate() error {
	if p.MaxComplexity < 1 || p.MaxComplexity > 5 {
		return fmt.Errorf("max_complexity must be between 1 and 5, got %d", p.MaxComplexity)
	}
	if p.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", p.MaxTokens)
	}
	if p.CostPerToken < 0 {
		return fmt.Errorf("cost_per_token must not be negative, got %f", p.CostPerToken)
	}
	return nil
}

// ProviderError represents an error from a backend provider.
type ProviderError struct {
	// Provider is the name of the provider that returned the error.
	Provider string `json:"provider"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Retryable indicates if the request can be retried elsewhere.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error (if any).
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Common error codes.
const (
	// ErrCodeRateLimit indicates rate limiting.
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeTimeout indicates request timeout.
	ErrCodeTimeout = "timeout"

	// ErrCodeInvalidRequest indicates a malformed request.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeServerError indicates a provider-side error.
	ErrCodeServerError = "server_error"

	// ErrCodeUnavailable indicates the provider is unavailable.
	ErrCodeUnavailable = "unavailable"
)

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
	}
}

// isRetryableCode determines if an error code is retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}
