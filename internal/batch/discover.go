package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Unit is one stored transcript: {root}/{assistant_id}/{call_id}.json.
type Unit struct {
	AssistantID string
	CallID      string
	Path        string
}

// Discover lists every transcript under root, sorted by assistant then call.
func Discover(root string) ([]Unit, error) {
	var units []Unit

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if d.IsDir() {
			if path != root && (depth > 1 || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if depth != 2 {
			return nil
		}
		u, ok := unitFromPath(path)
		if ok {
			units = append(units, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].AssistantID != units[j].AssistantID {
			return units[i].AssistantID < units[j].AssistantID
		}
		return units[i].CallID < units[j].CallID
	})
	return units, nil
}

// UnitFromPath derives the unit of a single transcript file.
func UnitFromPath(path string) (Unit, error) {
	u, ok := unitFromPath(path)
	if !ok {
		return Unit{}, fmt.Errorf("not a transcript path: %s", path)
	}
	return u, nil
}

func unitFromPath(path string) (Unit, bool) {
	name := filepath.Base(path)
	callID, ok := strings.CutSuffix(name, ".json")
	if !ok || callID == "" || strings.HasPrefix(name, ".") {
		return Unit{}, false
	}
	assistantID := filepath.Base(filepath.Dir(path))
	if assistantID == "" || assistantID == "." || assistantID == string(filepath.Separator) {
		return Unit{}, false
	}
	return Unit{AssistantID: assistantID, CallID: callID, Path: path}, true
}
