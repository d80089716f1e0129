package protocol

import "time"

// RenderRequest asks the render service to render a transcript. RenderID is
// assigned by the service when empty.
type RenderRequest struct {
	RenderID   string `json:"render_id,omitempty"`
	Requester  string `json:"requester,omitempty"`
	Transcript string `json:"transcript"`
}

// Utterance is one side of a timeline entry as sent on the bus.
type Utterance struct {
	Line    int    `json:"line"`
	Speaker string `json:"speaker"`
	Voice   int    `json:"voice"`
	Text    string `json:"text"`
	WAV     []byte `json:"wav"`
}

// TimelineEntry is published once per timeline entry, in order.
type TimelineEntry struct {
	RenderID string      `json:"render_id"`
	Sequence int         `json:"sequence"`
	Kind     string      `json:"kind"`
	Speech   []Utterance `json:"speech,omitempty"`
	Silence  float64     `json:"silence,omitempty"`
}

// Warning mirrors a recovered render problem.
type Warning struct {
	Line   int    `json:"line"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// RenderStatus closes a render, after its last timeline entry.
type RenderStatus struct {
	RenderID  string    `json:"render_id"`
	Entries   int       `json:"entries"`
	Warnings  []Warning `json:"warnings,omitempty"`
	Error     string    `json:"error,omitempty"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectRenderRequest = "prosody.render.request"
	SubjectTimelineEntry = "prosody.timeline.entry"
	SubjectRenderDone    = "prosody.render.done"
)
