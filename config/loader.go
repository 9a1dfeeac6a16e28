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

// Package config loads the provider capability catalog and service settings
// from a YAML file. Environment variable references in the file are expanded
// before parsing.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"nexo/coordination/llm"
)

// File represents the root structure of a configuration file.
type File struct {
	Version   string                    `yaml:"version"`
	Server    ServerConfig              `yaml:"server,omitempty"`
	Routing   RoutingConfig             `yaml:"routing,omitempty"`
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ServerConfig holds the HTTP service settings.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// RoutingConfig holds selection and fallback settings.
type RoutingConfig struct {
	DefaultProvider string  `yaml:"default_provider,omitempty"`
	CostCeiling     float64 `yaml:"cost_ceiling,omitempty"`
}

// ProviderConfig declares one provider's capability profile in the catalog.
type ProviderConfig struct {
	Enabled            bool     `yaml:"enabled"`
	DisplayName        string   `yaml:"display_name,omitempty"`
	SupportedLanguages []string `yaml:"supported_languages"`
	SupportedTasks     []string `yaml:"supported_tasks"`
	MaxComplexity      int      `yaml:"max_complexity"`
	MaxTokens          int      `yaml:"max_tokens"`
	CostPerToken       float64  `yaml:"cost_per_token"`
}

// YAMLLoader loads configuration from a YAML file.
type YAMLLoader struct {
	filePath string
	config   *File
}

// NewYAMLLoader creates a loader and parses the file immediately.
func NewYAMLLoader(filePath string) (*YAMLLoader, error) {
	loader := &YAMLLoader{filePath: filePath}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

func (l *YAMLLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}

	expanded := expandEnvVars(string(data))

	var config File
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := Validate(&config); err != nil {
		return err
	}

	l.config = &config
	return nil
}

// Reload re-reads and re-parses the configuration file.
func (l *YAMLLoader) Reload() error {
	return l.reload()
}

// Server returns the HTTP service settings with defaults applied.
func (l *YAMLLoader) Server() ServerConfig {
	server := l.config.Server
	if server.ListenAddr == "" {
		server.ListenAddr = ":8080"
	}
	return server
}

// Routing returns the selection and fallback settings.
func (l *YAMLLoader) Routing() RoutingConfig {
	return l.config.Routing
}

// LoadProfiles returns the capability profile for every enabled provider in
// the catalog.
func (l *YAMLLoader) LoadProfiles() (map[string]llm.CapabilityProfile, error) {
	if l.config == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	profiles := make(map[string]llm.CapabilityProfile)
	for name, pc := range l.config.Providers {
		if !pc.Enabled {
			continue
		}

		profile := llm.CapabilityProfile{
			SupportedLanguages: pc.SupportedLanguages,
			SupportedTasks:     pc.SupportedTasks,
			MaxComplexity:      pc.MaxComplexity,
			MaxTokens:          pc.MaxTokens,
			CostPerToken:       pc.CostPerToken,
		}
		if err := profile.Validate(); err != nil {
			return nil, fmt.Errorf("provider '%s': %w", name, err)
		}
		profiles[name] = profile
	}
	return profiles, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME and ${VAR_NAME:-default} syntax. Undefined
// variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// Validate checks the structural requirements of a parsed config file.
func Validate(config *File) error {
	if config.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	if config.Routing.CostCeiling < 0 {
		return fmt.Errorf("routing cost_ceiling must not be negative")
	}

	for name, provider := range config.Providers {
		if !provider.Enabled {
			continue
		}
		if len(provider.SupportedTasks) == 0 {
			return fmt.Errorf("provider '%s' must list at least one supported task", name)
		}
	}

	return nil
}

// ExampleFile generates an example configuration file.
func ExampleFile() string {
	return `# Nexo coordination configuration
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default} syntax

version: "1.0"

server:
  listen_addr: ${LISTEN_ADDR:-:8080}
  allowed_origins:
    - "*"

routing:
  default_provider: ${DEFAULT_PROVIDER:-primary}
  cost_ceiling: 0.01

providers:
  primary:
    enabled: true
    display_name: "Primary Model"
    supported_languages: [en, de, fr]
    supported_tasks: [generation, analysis, summarization]
    max_complexity: 5
    max_tokens: 8192
    cost_per_token: 0.00002

  budget:
    enabled: true
    display_name: "Budget Model"
    supported_languages: [en]
    supported_tasks: [generation, summarization]
    max_complexity: 3
    max_tokens: 4096
    cost_per_token: 0.000002

  local:
    enabled: false  # Enable when running a local model server
    display_name: "Local Model"
    supported_languages: [en]
    supported_tasks: [generation]
    max_complexity: 2
    max_tokens: 2048
    cost_per_token: 0
`
}
