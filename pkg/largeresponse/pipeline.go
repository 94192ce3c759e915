package largeresponse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/sandbox"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// DefaultThreshold is the size above which responses spill to disk.
const DefaultThreshold = 50 * 1024

const sampleLines = 20

// ErrExtractionContractViolation is returned when the extracted dict's key
// set is not exactly the required set.
var ErrExtractionContractViolation = errors.New("extraction_contract_violation")

// Result is the outcome of processing one tool response.
type Result struct {
	Status        string         `json:"status"`
	Strategy      string         `json:"strategy"`
	LargeResponse bool           `json:"large_response"`
	Data          map[string]any `json:"data"`
}

// EventRef carries the trace lineage stamped on pipeline events.
type EventRef struct {
	TenantID  string
	SessionID string
	PlanID    string
	TaskID    string
}

// Pipeline decides between direct projection and sandboxed extraction.
type Pipeline struct {
	Threshold int

	registry *TempFileRegistry
	executor *sandbox.Executor
	events   storage.EventRepository
	logger   *slog.Logger
}

func NewPipeline(registry *TempFileRegistry, executor *sandbox.Executor, events storage.EventRepository) *Pipeline {
	return &Pipeline{
		Threshold: DefaultThreshold,
		registry:  registry,
		executor:  executor,
		events:    events,
		logger:    slog.Default().With("component", "large_response"),
	}
}

// Process reduces response to the fields required by shape. Small responses
// are projected in-process; large ones are spilled, extracted in the sandbox
// (with script, or a generated projection script), contract-gated, and traced
// with the script hash. The temp file is deleted on every path.
func (p *Pipeline) Process(ctx context.Context, ref EventRef, response string, shape map[string]any, script string) (*Result, error) {
	required := shapeKeys(shape)

	if len(response) < p.Threshold {
		return &Result{
			Status:        "ok",
			Strategy:      "direct",
			LargeResponse: false,
			Data:          projectDirect(response, required),
		}, nil
	}

	fileID, filePath, err := p.registry.Register(response)
	if err != nil {
		return nil, err
	}
	defer p.registry.Delete(fileID)

	strategy := "exec_python"
	if script == "" {
		strategy = "exec_python_default"
		script = defaultExtractionScript(required)
	}

	extracted, err := p.executor.Run(ctx, script, fileID, filePath)
	if err != nil {
		return nil, err
	}
	if err := gateKeys(extracted, required); err != nil {
		return nil, err
	}

	p.appendEvent(ctx, ref, map[string]any{
		"strategy":    strategy,
		"script_hash": scriptHash(script),
		"input_bytes": len(response),
		"sample":      sample(response),
	})
	return &Result{
		Status:        "ok",
		Strategy:      strategy,
		LargeResponse: true,
		Data:          extracted,
	}, nil
}

// projectDirect parses response as a JSON object and keeps only the required
// keys. A non-JSON response with exactly one required key is wrapped into
// that key; otherwise the raw text is returned under "raw".
func projectDirect(response string, required []string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(response), &parsed); err == nil {
		out := make(map[string]any, len(required))
		for _, key := range required {
			if value, ok := parsed[key]; ok {
				out[key] = value
			}
		}
		return out
	}
	if len(required) == 1 {
		return map[string]any{required[0]: response}
	}
	return map[string]any{"raw": response}
}

// gateKeys enforces exact key-set equality between the extracted dict and
// the required fields.
func gateKeys(extracted map[string]any, required []string) error {
	if len(extracted) != len(required) {
		return fmt.Errorf("%w: got keys %v, want %v", ErrExtractionContractViolation, mapKeys(extracted), required)
	}
	for _, key := range required {
		if _, ok := extracted[key]; !ok {
			return fmt.Errorf("%w: missing key %q", ErrExtractionContractViolation, key)
		}
	}
	return nil
}

func defaultExtractionScript(required []string) string {
	keysJSON, _ := json.Marshal(required)
	return fmt.Sprintf(`data = read_json_file(file_id)
result = {}
for key in %s:
    if isinstance(data, dict) and key in data:
        result[key] = data[key]
`, string(keysJSON))
}

func scriptHash(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

func sample(response string) []string {
	lines := strings.SplitN(response, "\n", sampleLines+1)
	if len(lines) > sampleLines {
		lines = lines[:sampleLines]
	}
	return lines
}

func shapeKeys(shape map[string]any) []string {
	keys := make([]string, 0, len(shape))
	for key := range shape {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p *Pipeline) appendEvent(ctx context.Context, ref EventRef, payload map[string]any) {
	event := &models.EventRecord{
		EventType: models.EventLargeResponseExec,
		TenantID:  ref.TenantID,
		SessionID: ref.SessionID,
		PlanID:    ref.PlanID,
		TaskID:    ref.TaskID,
		Payload:   payload,
	}
	if err := p.events.Append(ctx, event); err != nil {
		p.logger.Error("failed to append extraction event", "error", err)
	}
}
