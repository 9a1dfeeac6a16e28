// Copyright 2025 Nexo
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the Nexo coordination service.
//
// The coordination service routes completion requests across LLM providers:
// - Ranks providers by capability fit, performance, cost and reliability
// - Falls back to the next-best provider on failure
// - Executes multi-step workflows with placeholder chaining
// - Schedules request batches under a resource-aware concurrency plan
// - Adapts its routing rules from observed bottlenecks
//
// Usage:
//
//	./coordinator
//
// Environment Variables:
//
//	CONFIG_FILE - path to the YAML config file (default: coordination.yaml)
//	PORT - HTTP server port (overrides the configured listen address)
package main

import (
	"nexo/coordination/service"
)

func main() {
	service.Run()
}
