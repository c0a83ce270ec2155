package hermes

import "time"

const (
	// SubjectTranscriptProcessed carries one TranscriptProcessed per call
	// directory committed by the extract job.
	SubjectTranscriptProcessed = "pathminer.transcript.processed"
	// SubjectRunCompleted carries one RunCompleted per finished job run.
	SubjectRunCompleted = "pathminer.run.completed"
)

type TranscriptProcessed struct {
	RunID          string    `json:"run_id"`
	AssistantID    string    `json:"assistant_id"`
	CallID         string    `json:"call_id"`
	Language       string    `json:"language"`
	DecisionPoints int       `json:"decision_points"`
	Timestamp      time.Time `json:"timestamp"`
}

type RunCompleted struct {
	RunID          string    `json:"run_id"`
	Job            string    `json:"job"`
	Discovered     int       `json:"discovered"`
	Skipped        int       `json:"skipped"`
	Processed      int       `json:"processed"`
	Failed         int       `json:"failed"`
	DecisionPoints int       `json:"decision_points"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}
