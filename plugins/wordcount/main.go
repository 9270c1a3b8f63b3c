// Command wordcount is a sample exec processor. For every staged input it
// writes <name>.wc.json with line, word and byte counts into the output
// directory.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/automaton/internal/protocol"
)

type pluginConfig struct {
	FailEmpty bool
	Suffix    string
}

type counts struct {
	Source string `json:"source"`
	Lines  int    `json:"lines"`
	Words  int    `json:"words"`
	Bytes  int64  `json:"bytes"`
}

func main() {
	resp := handle()
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func handle() protocol.Response {
	req, err := protocol.DecodeRequest(os.Stdin)
	if err != nil {
		return errResp(fmt.Sprintf("invalid request JSON: %v", err))
	}
	return handleRequest(req)
}

func handleRequest(req *protocol.Request) protocol.Response {
	if req.OutputDir == "" {
		return errResp("output_dir is required")
	}
	cfg := parseConfig(req.Config)

	var outputs []string
	var logs []protocol.LogEntry
	for _, in := range req.Inputs {
		c, err := count(in)
		if err != nil {
			return partial(outputs, err.Error())
		}
		if c.Bytes == 0 && cfg.FailEmpty {
			return partial(outputs, fmt.Sprintf("%s is empty", c.Source))
		}

		name := c.Source + cfg.Suffix
		data, _ := json.MarshalIndent(c, "", "  ")
		if err := os.WriteFile(filepath.Join(req.OutputDir, name), append(data, '\n'), 0o644); err != nil {
			return partial(outputs, fmt.Sprintf("write %s: %v", name, err))
		}
		outputs = append(outputs, name)
		logs = append(logs, protocol.LogEntry{
			Level:   "info",
			Message: fmt.Sprintf("%s: %d lines, %d words", c.Source, c.Lines, c.Words),
		})
	}

	return protocol.Response{
		Status:  protocol.StatusOK,
		Outputs: outputs,
		Logs:    logs,
	}
}

func count(path string) (counts, error) {
	c := counts{Source: filepath.Base(path)}

	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("open %s: %w", c.Source, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return c, fmt.Errorf("stat %s: %w", c.Source, err)
	}
	if !info.Mode().IsRegular() {
		return c, fmt.Errorf("%s is not a regular file", c.Source)
	}
	c.Bytes = info.Size()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		c.Lines++
		c.Words += len(strings.Fields(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return c, fmt.Errorf("read %s: %w", c.Source, err)
	}
	return c, nil
}

func parseConfig(raw map[string]any) pluginConfig {
	cfg := pluginConfig{Suffix: ".wc.json"}
	if v, ok := raw["fail_empty"].(bool); ok {
		cfg.FailEmpty = v
	}
	if v := asString(raw["suffix"]); v != "" {
		cfg.Suffix = v
	}
	return cfg
}

// partial reports a failure while surfacing whatever was already written.
func partial(outputs []string, message string) protocol.Response {
	resp := errResp(message)
	resp.Outputs = outputs
	return resp
}

func errResp(message string) protocol.Response {
	return protocol.Response{
		Status: protocol.StatusError,
		Error:  message,
		Logs:   []protocol.LogEntry{{Level: "error", Message: message}},
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return ""
	}
}
