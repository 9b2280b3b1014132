package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(target int32) Entry {
	return Entry{
		Event:      EventEnforce,
		Mode:       "kill",
		SourceUID:  10001,
		TargetUID:  target,
		Tag:        "contacts",
		Bytes:      1100,
		Threshold:  1000,
		PIDs:       []int32{311, 312},
		Killed:     2,
		Reason:     "over threshold",
		PolicyID:   "flow.contacts.max_bytes_exceeded",
		PolicyHash: "sha256:abc123",
	}
}

func journalPaths(t *testing.T) map[string]string {
	dir := t.TempDir()
	return map[string]string{
		"jsonl":  filepath.Join(dir, "audit.jsonl"),
		"sqlite": filepath.Join(dir, "audit.db"),
	}
}

func record(t *testing.T, path string, n int) {
	t.Helper()
	sink, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, sink.Record(testEntry(int32(10002+i%2))))
	}
	require.NoError(t, sink.Close())
}

func TestOpenSelectsBackendByExtension(t *testing.T) {
	paths := journalPaths(t)

	s, err := Open(paths["jsonl"])
	require.NoError(t, err)
	assert.IsType(t, &Log{}, s)
	require.NoError(t, s.Close())

	s, err = Open(paths["sqlite"])
	require.NoError(t, err)
	assert.IsType(t, &Store{}, s)
	require.NoError(t, s.Close())
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	for name, path := range journalPaths(t) {
		t.Run(name, func(t *testing.T) {
			record(t, path, 5)
			result := Verify(path)
			assert.True(t, result.Valid, result.Error)
			assert.Equal(t, 5, result.Lines)
		})
	}
}

func TestReopenContinuesChain(t *testing.T) {
	for name, path := range journalPaths(t) {
		t.Run(name, func(t *testing.T) {
			record(t, path, 2)
			record(t, path, 3)
			result := Verify(path)
			assert.True(t, result.Valid, result.Error)
			assert.Equal(t, 5, result.Lines)
		})
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	record(t, path, 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"bytes":1100`, `"bytes":10`, 1)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 3, result.ErrorLine)
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	record(t, path, 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	kept := []string{lines[0], lines[2]}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(kept, "\n")+"\n"), 0o600))

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.ErrorLine)
}

func TestVerifyDetectsTamperedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	record(t, path, 3)

	s, err := OpenStore(path)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE enforcements SET body = replace(body, '"bytes":1100', '"bytes":1') WHERE id = 1`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.ErrorLine)
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	record(t, path, 0)
	result := Verify(path)
	assert.True(t, result.Valid)
	assert.Zero(t, result.Lines)
}

func TestVerifyMissingFile(t *testing.T) {
	for name, path := range journalPaths(t) {
		t.Run(name, func(t *testing.T) {
			result := Verify(path)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestConcurrentWritesSerialize(t *testing.T) {
	for name, path := range journalPaths(t) {
		t.Run(name, func(t *testing.T) {
			sink, err := Open(path)
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 5; j++ {
						assert.NoError(t, sink.Record(testEntry(1)))
					}
				}()
			}
			wg.Wait()
			require.NoError(t, sink.Close())

			result := Verify(path)
			assert.True(t, result.Valid, result.Error)
			assert.Equal(t, 50, result.Lines)
		})
	}
}

func TestGenesisHashIsZero(t *testing.T) {
	assert.Equal(t, "sha256:"+strings.Repeat("0", 64), GenesisHash)
}

func TestHashLineIsDeterministic(t *testing.T) {
	assert.Equal(t, HashLine([]byte("x")), HashLine([]byte("x")))
	assert.NotEqual(t, HashLine([]byte("x")), HashLine([]byte("y")))
}

func TestReadFilters(t *testing.T) {
	for name, path := range journalPaths(t) {
		t.Run(name, func(t *testing.T) {
			record(t, path, 6)

			all, err := Read(path, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 6)

			uid := int32(10003)
			odd, err := Read(path, Filter{TargetUID: &uid})
			require.NoError(t, err)
			assert.Len(t, odd, 3)

			last, err := Read(path, Filter{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, all[4:], last)

			none, err := Read(path, Filter{Event: EventKillFailed})
			require.NoError(t, err)
			assert.Empty(t, none)

			future, err := Read(path, Filter{From: time.Now().Add(time.Hour)})
			require.NoError(t, err)
			assert.Empty(t, future)
		})
	}
}

func TestFormatTimeline(t *testing.T) {
	e := testEntry(10002)
	e.Timestamp = "2025-01-15T14:00:00.000Z"
	out := FormatTimeline([]Entry{e})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[1], "311,312")
	assert.Contains(t, lines[1], "contacts")
	assert.Equal(t, "1 entries", lines[2])
}
