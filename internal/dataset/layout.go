package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MarkerFile is written last into a call directory. Its presence means the
// call was fully processed.
const MarkerFile = "conversation.json"

const stagingInfix = ".partial-"

// Layout maps (language, assistant, call) to paths under Root:
// {Root}/{language}/{assistant_id}/{call_id}/{seq}.json.
type Layout struct {
	Root string
}

func (l Layout) CallDir(language, assistantID, callID string) string {
	return filepath.Join(l.Root, language, assistantID, callID)
}

func (l Layout) MarkerPath(language, assistantID, callID string) string {
	return filepath.Join(l.CallDir(language, assistantID, callID), MarkerFile)
}

func (l Layout) DecisionPointPath(language, assistantID, callID string, seq int) string {
	return filepath.Join(l.CallDir(language, assistantID, callID), seqFile(seq))
}

// IsComplete reports whether the call directory carries its marker.
func (l Layout) IsComplete(language, assistantID, callID string) bool {
	_, err := os.Stat(l.MarkerPath(language, assistantID, callID))
	return err == nil
}

func seqFile(seq int) string {
	return strconv.Itoa(seq) + ".json"
}

func isStaging(name string) bool {
	return strings.Contains(name, stagingInfix)
}

// writeJSON encodes v into path through a temp file in the same directory and
// a rename, so readers never observe a partial file. HTML escaping is off to
// keep characters such as § readable.
func writeJSON(path string, v any, indent bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, bytes.TrimRight(buf.Bytes(), "\n"))
}

// WriteFileAtomic writes data to path via a temp file and rename. The parent
// directory is created if needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to path atomically.
func WriteJSON(path string, v any) error {
	return writeJSON(path, v, true)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
