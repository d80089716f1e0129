package schedule

import "fmt"

type EntryKind int

const (
	KindUtterance EntryKind = iota
	KindSilence
	KindOverlapPair
)

var entryKindNames = map[EntryKind]string{
	KindUtterance:   "utterance",
	KindSilence:     "silence",
	KindOverlapPair: "overlap_pair",
}

func (k EntryKind) String() string {
	if name, ok := entryKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k EntryKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EntryKind) UnmarshalText(b []byte) error {
	for kind, name := range entryKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown timeline entry kind %q", b)
}

// Utterance is one synthesized segment.
type Utterance struct {
	Line    int    `json:"line"`
	Speaker string `json:"speaker"`
	Voice   int    `json:"voice"`
	Text    string `json:"text"`
	Audio   []byte `json:"-"`
}

// Entry is one step of the timeline. Speech holds one utterance for
// KindUtterance and both sides for KindOverlapPair, which plays them together
// and ends with the longer one. Silence is in seconds.
type Entry struct {
	Kind    EntryKind   `json:"kind"`
	Speech  []Utterance `json:"speech,omitempty"`
	Silence float64     `json:"silence,omitempty"`
}

func UtteranceEntry(u Utterance) Entry {
	return Entry{Kind: KindUtterance, Speech: []Utterance{u}}
}

func SilenceEntry(seconds float64) Entry {
	return Entry{Kind: KindSilence, Silence: seconds}
}

func PairEntry(first, second Utterance) Entry {
	return Entry{Kind: KindOverlapPair, Speech: []Utterance{first, second}}
}
