// Package sandbox runs restricted Python extraction scripts in a fresh
// subprocess. The embedded harness validates the script's AST (no imports, no
// with-blocks, no calls to filesystem or reflection builtins) and executes it
// with a whitelisted environment exposing json, file_id, and read_json_file.
// The Go side owns the wall-clock timeout and kills the worker on expiry.
package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

//go:embed harness.py
var harnessScript string

// Defaults for extraction execution.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 500 * 1024
)

// Sandbox error kinds.
var (
	ErrTimeout          = errors.New("exec_python_timeout")
	ErrDisallowedSyntax = errors.New("exec_python_disallowed_syntax")
	ErrDisallowedCall   = errors.New("exec_python_disallowed_call")
	ErrOutputTooLarge   = errors.New("exec_python_output_too_large")
	ErrFileOutsideTemp  = errors.New("exec_python_file_outside_tempdir")
	ErrMissingResult    = errors.New("exec_python_missing_result")
)

var errorKinds = map[string]error{
	"exec_python_timeout":              ErrTimeout,
	"exec_python_disallowed_syntax":    ErrDisallowedSyntax,
	"exec_python_disallowed_call":      ErrDisallowedCall,
	"exec_python_output_too_large":     ErrOutputTooLarge,
	"exec_python_file_outside_tempdir": ErrFileOutsideTemp,
	"exec_python_missing_result":       ErrMissingResult,
}

// Executor runs extraction scripts against files registered under TempRoot.
type Executor struct {
	PythonPath     string
	TempRoot       string
	Timeout        time.Duration
	MaxOutputBytes int
}

func NewExecutor(tempRoot string) *Executor {
	return &Executor{
		PythonPath:     "python3",
		TempRoot:       tempRoot,
		Timeout:        DefaultTimeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
	}
}

type harnessJob struct {
	Script         string `json:"script"`
	FileID         string `json:"file_id"`
	FilePath       string `json:"file_path"`
	TempRoot       string `json:"temp_root"`
	MaxOutputBytes int    `json:"max_output_bytes"`
}

type harnessVerdict struct {
	OK        bool           `json:"ok"`
	Result    map[string]any `json:"result"`
	ErrorKind string         `json:"error_kind"`
	Error     string         `json:"error"`
}

// Run executes script against the registered file and returns the extracted
// result dict. Any verdict failure maps to one of the package's sentinel
// errors; a wall-clock overrun returns ErrTimeout after the worker is killed.
func (e *Executor) Run(ctx context.Context, script, fileID, filePath string) (map[string]any, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	job, err := json.Marshal(harnessJob{
		Script:         script,
		FileID:         fileID,
		FilePath:       filePath,
		TempRoot:       e.TempRoot,
		MaxOutputBytes: e.MaxOutputBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding sandbox job: %w", err)
	}

	cmd := exec.CommandContext(runCtx, e.PythonPath, "-c", harnessScript)
	cmd.Stdin = bytes.NewReader(job)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("sandbox worker failed: %w: %s", err, stderr.String())
	}

	var verdict harnessVerdict
	if err := json.Unmarshal(stdout.Bytes(), &verdict); err != nil {
		return nil, fmt.Errorf("decoding sandbox verdict: %w", err)
	}
	if !verdict.OK {
		if kind, ok := errorKinds[verdict.ErrorKind]; ok {
			return nil, fmt.Errorf("%w: %s", kind, verdict.Error)
		}
		return nil, fmt.Errorf("sandbox failure %s: %s", verdict.ErrorKind, verdict.Error)
	}
	return verdict.Result, nil
}
