package domain

import "time"

// QueryState is a state of the answering state machine.
type QueryState string

const (
	QueryStateReceived    QueryState = "received"
	QueryStateEmbedding   QueryState = "embedding"
	QueryStateRetrieving  QueryState = "retrieving"
	QueryStateCompressing QueryState = "compressing"
	QueryStateAssembling  QueryState = "assembling"
	QueryStateGenerating  QueryState = "generating"
	QueryStateAnswered    QueryState = "answered"
	QueryStateFailed      QueryState = "failed"
)

// Terminal reports whether no transition leaves the state.
func (s QueryState) Terminal() bool {
	return s == QueryStateAnswered || s == QueryStateFailed
}

// QueryTrace records how one query went through the pipeline.
type QueryTrace struct {
	ID                  string
	States              []QueryState
	FailedStage         QueryState
	ErrorCode           string
	RetrievedCount      int
	PassageCount        int
	CompressionFallback bool
	EmptyContext        bool
	StartedAt           time.Time
	Duration            time.Duration
}

// Enter appends a state transition.
func (t *QueryTrace) Enter(s QueryState) {
	t.States = append(t.States, s)
}

// Current returns the latest state.
func (t *QueryTrace) Current() QueryState {
	if len(t.States) == 0 {
		return ""
	}
	return t.States[len(t.States)-1]
}

// Visited reports whether the query passed through s.
func (t *QueryTrace) Visited(s QueryState) bool {
	for _, st := range t.States {
		if st == s {
			return true
		}
	}
	return false
}
