// Package transcript parses stored call transcripts into typed turns.
//
// A stored transcript is a JSON array of loosely shaped objects. Every element
// keeps its position: turns that fail to parse are still counted when indexes
// are computed, so callers always work with indexes into the raw array.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

type Role string

const (
	RoleSpeaker   Role = "SPEAKER"
	RoleAssistant Role = "ASSISTANT"

	// roleLegacyUser is how older exports label the caller.
	roleLegacyUser Role = "USER"
)

// IsSpeaker reports whether r is the caller side of the conversation.
func (r Role) IsSpeaker() bool {
	return r == RoleSpeaker || r == roleLegacyUser
}

// Matching is the annotation an assistant turn carries when it selected a
// branch automatically.
type Matching struct {
	Distance float64
	BranchID string
	// Original is the offline transcription of the caller turn, when available.
	Original *string
}

type Turn struct {
	Role     Role
	Text     string
	Matching *Matching
}

// Call is one completed call as stored upstream. Transcript holds the raw
// JSON turn array.
type Call struct {
	ID         string
	Transcript json.RawMessage
}

// RawTurn is one untyped turn record exactly as stored.
type RawTurn map[string]json.RawMessage

type wireMatching struct {
	Distance *float64 `json:"distance"`
	BranchID *string  `json:"conv_path_id"`
	Original *string  `json:"original"`
}

// Parse validates raw as a matched turn. The second result is false when raw
// lacks a string role or text, or a matching object with both a branch id and
// a distance.
func Parse(raw RawTurn) (Turn, bool) {
	if raw == nil {
		return Turn{}, false
	}
	var role, text string
	if !decodeField(raw, "role", &role) || !decodeField(raw, "text", &text) {
		return Turn{}, false
	}

	var m wireMatching
	if !decodeField(raw, "matching", &m) {
		return Turn{}, false
	}
	if m.BranchID == nil || m.Distance == nil {
		return Turn{}, false
	}

	return Turn{
		Role: Role(role),
		Text: text,
		Matching: &Matching{
			Distance: *m.Distance,
			BranchID: *m.BranchID,
			Original: m.Original,
		},
	}, true
}

// FilterMatched returns the turns of raws that parse as matched turns, along
// with their positions in raws.
func FilterMatched(raws []RawTurn) ([]Turn, []int) {
	var turns []Turn
	var idx []int
	for i, raw := range raws {
		t, ok := Parse(raw)
		if !ok {
			continue
		}
		turns = append(turns, t)
		idx = append(idx, i)
	}
	return turns, idx
}

// RoleOf returns the role of raw, or "" when it is missing or not a string.
func RoleOf(raw RawTurn) Role {
	var s string
	decodeField(raw, "role", &s)
	return Role(s)
}

// TextOf returns the live transcription of raw, or "" when it is missing.
func TextOf(raw RawTurn) string {
	var s string
	decodeField(raw, "text", &s)
	return s
}

// UserText returns the best transcription of a caller turn: the offline
// transcription stored under matching.original when it is a non-empty string,
// the live text otherwise.
func UserText(raw RawTurn) string {
	var m struct {
		Original *string `json:"original"`
	}
	if decodeField(raw, "matching", &m) && m.Original != nil && *m.Original != "" {
		return *m.Original
	}
	return TextOf(raw)
}

// BranchIDOf returns matching.conv_path_id of raw without requiring the rest
// of the matched-turn shape.
func BranchIDOf(raw RawTurn) (string, bool) {
	var m struct {
		BranchID *string `json:"conv_path_id"`
	}
	if !decodeField(raw, "matching", &m) || m.BranchID == nil {
		return "", false
	}
	return *m.BranchID, true
}

// Decode splits a stored transcript into raw turns. Elements that are not
// JSON objects become nil turns so positions are preserved.
func Decode(data []byte) ([]RawTurn, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	raws := make([]RawTurn, len(elems))
	for i, elem := range elems {
		var raw RawTurn
		if err := json.Unmarshal(elem, &raw); err != nil {
			continue
		}
		raws[i] = raw
	}
	return raws, nil
}

// Load reads and decodes one transcript file.
func Load(path string) ([]RawTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	raws, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raws, nil
}

func decodeField(raw RawTurn, key string, dst any) bool {
	v, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return false
	}
	return json.Unmarshal(v, dst) == nil
}
