package feature

// State is the execution state reported with every callback.
type State int

const (
	StateInvalid State = iota
	StateDone
	StateDataPending
	StateDataPartial
	StateCancel
)

// Terminal reports whether no further callbacks follow s.
func (s State) Terminal() bool { return s != StateDataPending && s != StateDataPartial }

func (s State) String() string {
	switch s {
	case StateDone:
		return "done"
	case StateDataPending:
		return "pending"
	case StateDataPartial:
		return "partial"
	case StateCancel:
		return "cancel"
	default:
		return "invalid"
	}
}

// Well-known text generation slot names.
const (
	SlotSystem    = "system"
	SlotUser      = "user"
	SlotAssistant = "assistant"
	SlotResponse  = "response"
)

// Slot is a named UTF-8 text input or output.
type Slot struct {
	Name string
	Text string
}

// Slots is an ordered set of named slots.
type Slots []Slot

// Find returns the text of the first slot called name.
func (s Slots) Find(name string) (string, bool) {
	for _, sl := range s {
		if sl.Name == name {
			return sl.Text, true
		}
	}
	return "", false
}

// RuntimeParameters tune a single text generation request.
type RuntimeParameters struct {
	// Seed of -1 asks the plugin for a non-deterministic seed.
	Seed            int32
	TokensToPredict int
	Interactive     bool
}

// Callback receives the outputs of one step and the state it ended in. The
// returned state is echoed back to the plugin; returning StateCancel asks the
// plugin to stop early.
type Callback func(outputs Slots, state State) State

// ExecutionContext is one asynchronous evaluation request.
type ExecutionContext struct {
	Inputs   Slots
	Runtime  RuntimeParameters
	Callback Callback
}
