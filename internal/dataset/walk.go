package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SkipCall can be returned by a WalkDecisionPoints callback to skip the
// remaining decision points of the current call.
var SkipCall = errors.New("skip call")

// Ref locates one committed decision point file.
type Ref struct {
	Language    string
	AssistantID string
	CallID      string
	Seq         int
	Path        string
}

// ReadDecisionPoint loads and validates one decision point file.
func ReadDecisionPoint(path string) (DecisionPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DecisionPoint{}, fmt.Errorf("read decision point: %w", err)
	}
	var dp DecisionPoint
	if err := json.Unmarshal(data, &dp); err != nil {
		return DecisionPoint{}, fmt.Errorf("parse decision point %s: %w", path, err)
	}
	if err := dp.Candidates.Validate(); err != nil {
		return DecisionPoint{}, fmt.Errorf("%s: %w", path, err)
	}
	return dp, nil
}

// WalkDecisionPoints calls fn for every decision point of every committed
// call directory under root, in language, assistant, call, seq order. Call
// directories without a marker and staging directories are not visited. A
// missing root holds no decision points.
func WalkDecisionPoints(root string, fn func(Ref) error) error {
	langs, err := subdirs(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, lang := range langs {
		assistants, err := subdirs(filepath.Join(root, lang))
		if err != nil {
			return err
		}
		for _, assistant := range assistants {
			calls, err := subdirs(filepath.Join(root, lang, assistant))
			if err != nil {
				return err
			}
			for _, call := range calls {
				dir := filepath.Join(root, lang, assistant, call)
				if !FileExists(filepath.Join(dir, MarkerFile)) {
					continue
				}
				seqs, err := decisionPointSeqs(dir)
				if err != nil {
					return err
				}
				for _, seq := range seqs {
					ref := Ref{
						Language:    lang,
						AssistantID: assistant,
						CallID:      call,
						Seq:         seq,
						Path:        filepath.Join(dir, seqFile(seq)),
					}
					if err := fn(ref); err != nil {
						if errors.Is(err, SkipCall) {
							break
						}
						return err
					}
				}
			}
		}
	}
	return nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || isStaging(name) || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func decisionPointSeqs(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var seqs []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(stem)
		if err != nil || seq < 0 {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}
