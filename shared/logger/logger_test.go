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

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) Entry {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry Entry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v (line: %q)", err, line)
	}
	return entry
}

func TestLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("routing", &buf)

	l.Info("req-1", "provider selected", map[string]any{"provider": "alpha"})

	entry := decodeLine(t, &buf)
	if entry.Level != INFO {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.Component != "routing" {
		t.Errorf("Component = %q, want routing", entry.Component)
	}
	if entry.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", entry.RequestID)
	}
	if entry.Fields["provider"] != "alpha" {
		t.Errorf("Fields[provider] = %v, want alpha", entry.Fields["provider"])
	}
	if entry.Timestamp == "" {
		t.Error("Timestamp should be set")
	}
}

func TestLogger_InfoWithDuration(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("scheduler", &buf)

	l.InfoWithDuration("req-2", "batch complete", 125.5, nil)

	entry := decodeLine(t, &buf)
	if entry.Fields["duration_ms"] != 125.5 {
		t.Errorf("Fields[duration_ms] = %v, want 125.5", entry.Fields["duration_ms"])
	}
}

func TestLogger_ErrorWithErr(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("workflow", &buf)

	l.ErrorWithErr("req-3", "step failed", errors.New("provider down"), nil)

	entry := decodeLine(t, &buf)
	if entry.Level != ERROR {
		t.Errorf("Level = %q, want ERROR", entry.Level)
	}
	if entry.Fields["error"] != "provider down" {
		t.Errorf("Fields[error] = %v, want provider down", entry.Fields["error"])
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("concurrent", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Info("", "message", nil)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d lines, want 10", len(lines))
	}
	for _, line := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("interleaved write produced invalid JSON: %q", line)
		}
	}
}
