package analysis

import (
	"errors"
	"fmt"
)

// State is a step of one analysis request.
type State string

const (
	StateReceived              State = "RECEIVED"
	StateDiagnosed             State = "DIAGNOSED"
	StateReturnedAnonymous     State = "RETURNED_ANONYMOUS"
	StateEnriched              State = "ENRICHED"
	StatePersisted             State = "PERSISTED"
	StateReturnedAuthenticated State = "RETURNED_AUTHENTICATED"
)

var ErrIllegalTransition = errors.New("illegal analysis state transition")

var transitions = map[State][]State{
	StateReceived:  {StateDiagnosed},
	StateDiagnosed: {StateReturnedAnonymous, StateEnriched},
	StateEnriched:  {StatePersisted},
	StatePersisted: {StateReturnedAuthenticated},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

type lifecycle struct {
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateReceived}
}

func (l *lifecycle) advance(to State) error {
	for _, next := range transitions[l.state] {
		if next == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.state, to)
}
