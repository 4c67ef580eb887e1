package agentloop

import (
	"github.com/corralhq/corral/modelservice"
)

// Transcript is the ordered, append-only record of a run's conversation.
// The loop is its only writer; everything else gets snapshots.
type Transcript struct {
	turns []modelservice.Turn
}

// NewTranscript creates a transcript seeded with the given turns.
func NewTranscript(turns ...modelservice.Turn) *Transcript {
	t := &Transcript{}
	t.turns = append(t.turns, turns...)
	return t
}

// Append adds turns to the end of the transcript.
func (t *Transcript) Append(turns ...modelservice.Turn) {
	t.turns = append(t.turns, turns...)
}

// Len returns the number of turns recorded so far.
func (t *Transcript) Len() int { return len(t.turns) }

// Turns returns a copy of the recorded turns. Mutating the copy does not
// affect the transcript.
func (t *Transcript) Turns() []modelservice.Turn {
	out := make([]modelservice.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Last returns the most recent turn, or false when the transcript is
// empty.
func (t *Transcript) Last() (modelservice.Turn, bool) {
	if len(t.turns) == 0 {
		return modelservice.Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}
