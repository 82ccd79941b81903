// Package main is an example hook that appends every event it receives to a
// JSON-lines file. The file path comes from the manifest config.
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Request represents the input from the hook executor.
type Request struct {
	Event  json.RawMessage `json:"event"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the hook configuration from hook.json.
type Config struct {
	Path string `json:"path"`
}

const defaultPath = "events.jsonl"

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := Config{Path: defaultPath}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	if err := appendLine(cfg.Path, req.Event); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to write %s: %v", cfg.Path, err))
		return
	}

	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: false,
		Error:   errMsg,
	})
}
