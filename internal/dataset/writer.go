package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrSessionClosed = errors.New("session already committed or discarded")

// Writer produces call directories. All files of a call are written into a
// staging directory next to the final one and renamed into place on commit,
// so a call directory either holds its marker and every decision point or
// does not exist.
type Writer struct {
	layout Layout
}

func NewWriter(root string) *Writer {
	return &Writer{layout: Layout{Root: root}}
}

func (w *Writer) Layout() Layout {
	return w.layout
}

// Begin starts a session for one call. Staging directories left behind by
// earlier crashed runs of the same call are removed.
func (w *Writer) Begin(language, assistantID, callID string) (*Session, error) {
	final := w.layout.CallDir(language, assistantID, callID)

	if err := removeStaging(final); err != nil {
		return nil, err
	}

	return &Session{
		final:   final,
		staging: final + stagingInfix + uuid.NewString(),
	}, nil
}

// removeStaging deletes the staging directories of the call directory final.
// Names are compared literally so call ids are never treated as patterns.
func removeStaging(final string) error {
	entries, err := os.ReadDir(filepath.Dir(final))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list staging dirs: %w", err)
	}
	prefix := filepath.Base(final) + stagingInfix
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(filepath.Dir(final), e.Name())); err != nil {
			return fmt.Errorf("remove stale staging dir: %w", err)
		}
	}
	return nil
}

// Session collects the files of one call. The staging directory is created
// on the first write, so a call that yields nothing leaves nothing behind.
type Session struct {
	final   string
	staging string
	created bool
	closed  bool
}

func (s *Session) ensureStaging() error {
	if s.created {
		return nil
	}
	if err := os.MkdirAll(s.staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	s.created = true
	return nil
}

// WriteDecisionPoint writes {seq}.json. Existing files are overwritten.
func (s *Session) WriteDecisionPoint(seq int, dp DecisionPoint) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := dp.Candidates.Validate(); err != nil {
		return fmt.Errorf("decision point %d: %w", seq, err)
	}
	if err := s.ensureStaging(); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.staging, seqFile(seq)), dp, false); err != nil {
		return fmt.Errorf("write decision point %d: %w", seq, err)
	}
	return nil
}

// Commit writes the conversation marker and moves the call directory into
// place. Any incomplete directory already at the final path is replaced.
func (s *Session) Commit(conversation []ConversationLine) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.ensureStaging(); err != nil {
		return err
	}
	if conversation == nil {
		conversation = []ConversationLine{}
	}
	if err := writeJSON(filepath.Join(s.staging, MarkerFile), conversation, false); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}

	if err := os.RemoveAll(s.final); err != nil {
		return fmt.Errorf("remove previous call dir: %w", err)
	}
	if err := os.Rename(s.staging, s.final); err != nil {
		return fmt.Errorf("commit call dir: %w", err)
	}
	s.closed = true
	return nil
}

// Discard drops everything written in the session. It is safe to call after
// Commit, in which case it does nothing.
func (s *Session) Discard() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.created {
		return nil
	}
	if err := os.RemoveAll(s.staging); err != nil {
		return fmt.Errorf("discard staging dir: %w", err)
	}
	return nil
}
