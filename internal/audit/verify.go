package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify validates the hash chain of the journal at path, JSONL or SQLite.
func Verify(path string) VerifyResult {
	lines, err := readLines(path)
	if err != nil {
		return VerifyResult{Error: err.Error()}
	}
	return verifyChain(lines)
}

// readLines returns the raw entry encodings of a journal in order.
func readLines(path string) ([][]byte, error) {
	if IsSQLite(path) {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		s, err := OpenStore(path)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.bodies()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return lines, nil
}

func verifyChain(lines [][]byte) VerifyResult {
	expected := GenesisHash
	for i, line := range lines {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return VerifyResult{Error: fmt.Sprintf("parse error: %v", err), ErrorLine: i + 1}
		}
		if entry.PrevHash != expected {
			return VerifyResult{
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", expected, entry.PrevHash),
				ErrorLine: i + 1,
			}
		}
		expected = HashLine(line)
	}
	return VerifyResult{Valid: true, Lines: len(lines)}
}
