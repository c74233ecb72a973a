// Package featuretest provides scripted in-memory feature plugins for tests.
package featuretest

import (
	"errors"
	"sync"

	"inferhost/internal/feature"
	"inferhost/internal/params"
	"inferhost/pkg/types"
)

// Journal records lifecycle calls across fakes so tests can assert ordering.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry.
func (j *Journal) Add(e string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Index returns the position of the first entry equal to e, or -1.
func (j *Journal) Index(e string) int {
	for i, got := range j.Entries() {
		if got == e {
			return i
		}
	}
	return -1
}

// Step is one callback invocation.
type Step struct {
	Text  string
	State feature.State
}

// Plugin is a fake TextGeneration interface.
type Plugin struct {
	ID      types.FeatureID
	Journal *Journal

	// CreateErr makes CreateInstance fail.
	CreateErr error
	// SubmitErr makes EvaluateAsync fail.
	SubmitErr error
	// Respond scripts the callbacks for a request. Defaults to echoing the
	// user slot followed by a terminal StateDone.
	Respond func(inputs feature.Slots) []Step
	// Gate, when set, is received from before each request starts calling back.
	Gate chan struct{}
	// Inline runs every callback on the submitting goroutine before
	// EvaluateAsync returns. Gate is ignored.
	Inline bool

	mu        sync.Mutex
	chains    []*params.Chain
	requests  []feature.ExecutionContext
	live      int
	destroyed int
}

var errForeignInstance = errors.New("instance not created by this plugin")

func (p *Plugin) Feature() types.FeatureID  { return p.ID }
func (p *Plugin) Kind() types.InterfaceKind { return types.InterfaceTextGeneration }

func (p *Plugin) CreateInstance(chain *params.Chain) (feature.Instance, error) {
	p.Journal.Add("create")
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.mu.Lock()
	p.chains = append(p.chains, chain)
	p.live++
	p.mu.Unlock()
	return &instance{p: p}, nil
}

func (p *Plugin) DestroyInstance(inst feature.Instance) error {
	in, ok := inst.(*instance)
	if !ok || in.p != p {
		return errForeignInstance
	}
	p.Journal.Add("destroy")
	p.mu.Lock()
	p.live--
	p.destroyed++
	p.mu.Unlock()
	return nil
}

// Chains returns the chains instances were created from.
func (p *Plugin) Chains() []*params.Chain {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*params.Chain(nil), p.chains...)
}

// Requests returns every submitted execution context.
func (p *Plugin) Requests() []feature.ExecutionContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]feature.ExecutionContext(nil), p.requests...)
}

// Live returns the number of instances not yet destroyed.
func (p *Plugin) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

type instance struct{ p *Plugin }

func (in *instance) EvaluateAsync(ec *feature.ExecutionContext) error {
	p := in.p
	if p.SubmitErr != nil {
		return p.SubmitErr
	}
	p.mu.Lock()
	p.requests = append(p.requests, *ec)
	respond := p.Respond
	gate := p.Gate
	p.mu.Unlock()
	if respond == nil {
		respond = echo
	}
	steps := respond(ec.Inputs)
	cb := ec.Callback
	run := func() {
		for _, s := range steps {
			cb(feature.Slots{{Name: feature.SlotResponse, Text: s.Text}}, s.State)
		}
	}
	if p.Inline {
		run()
		return nil
	}
	go func() {
		if gate != nil {
			<-gate
		}
		run()
	}()
	return nil
}

func echo(inputs feature.Slots) []Step {
	user, _ := inputs.Find(feature.SlotUser)
	return []Step{{Text: user, State: feature.StateDataPending}, {State: feature.StateDone}}
}
