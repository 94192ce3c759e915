package tools

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// WriteTemp spills data into a registered temp file and returns its id.
func WriteTemp(rc *RuntimeContext, data string) (map[string]any, error) {
	fileID, _, err := rc.TempFiles.Register(data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"file_id": fileID}, nil
}

// ReadLines returns up to n lines of a registered temp file starting at the
// zero-based line offset. Unknown files yield an empty line list.
func ReadLines(rc *RuntimeContext, fileID string, start, n int) (map[string]any, error) {
	path, ok := rc.TempFiles.Lookup(fileID)
	if !ok {
		return map[string]any{"lines": []any{}}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return map[string]any{"lines": []any{}}, nil
	}
	defer file.Close()

	lines := []any{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	index := 0
	for scanner.Scan() {
		if index >= start && len(lines) < n {
			lines = append(lines, scanner.Text())
		}
		index++
		if len(lines) >= n {
			break
		}
	}
	return map[string]any{"lines": lines}, nil
}

// ExecPython runs a restricted extraction script against a registered temp
// file and returns the script hash alongside the result.
func ExecPython(ctx context.Context, rc *RuntimeContext, script, fileID string) (map[string]any, error) {
	path, ok := rc.TempFiles.Lookup(fileID)
	if !ok {
		return map[string]any{
			"status":  "failed",
			"reason":  "file_not_found",
			"file_id": fileID,
		}, nil
	}
	result, err := rc.Sandbox.Run(ctx, script, fileID, path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(script))
	return map[string]any{
		"status":      "ok",
		"file_id":     fileID,
		"script_hash": hex.EncodeToString(sum[:]),
		"result":      result,
	}, nil
}
