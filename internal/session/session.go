// Package session drives stateful inference instances created from loaded
// feature interfaces.
package session

import (
	"time"

	"github.com/rs/zerolog"

	"inferhost/internal/feature"
	"inferhost/internal/params"
	"inferhost/pkg/types"
)

// KindGPT is the session kind for text generation.
const KindGPT = "gpt"

// Session is a live inference session owned by the registry.
type Session interface {
	Kind() string
	Status() types.SessionStatus
	Close() error
}

// Loader loads and unloads feature interfaces. *registry.Registry implements it.
type Loader interface {
	LoadFeature(id types.FeatureID, pluginPath string) (feature.Interface, error)
	UnloadFeature(id types.FeatureID, iface feature.Interface) error
}

// ParameterSource yields the backend block to chain, (nil, nil) for CPU only.
// *backend.Provider implements it.
type ParameterSource interface {
	Parameters() (params.Block, error)
}

// State is the lifecycle state of a session.
type State int

const (
	StateUninitialized State = iota
	StateCreating
	StateReady
	StateEvaluating
	StateDestroying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	case StateEvaluating:
		return "evaluating"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Defaults applied by NewText when the config leaves a field zero.
const (
	DefaultTokensToPredict = 200
	DefaultNumThreads      = 1
	DefaultVRAMBudgetMB    = 12288
	DefaultModelGUID       = "{01F43B70-CE23-42CA-9606-74E80C5ED0B6}"
	DefaultQueueDepth      = 16
	DefaultFrameBuffer     = 64
	// Seed -1 asks the plugin for a random seed.
	DefaultSeed int32 = -1
)

// TextConfig configures a text generation session.
type TextConfig struct {
	Feature    types.FeatureID
	PluginPath string

	ModelDir     string
	ModelGUID    string
	NumThreads   int
	VRAMBudgetMB int

	TokensToPredict int
	// Marker is dropped from responses by the default filter.
	Marker string
	// Filter overrides the marker filter.
	Filter Filter

	// RequireBackend fails creation instead of falling back to CPU when the
	// active graphics backend cannot provide a device.
	RequireBackend bool

	// QueueDepth bounds callers waiting for or holding the evaluation slot.
	QueueDepth int
	// MaxWait bounds the wait for admission. Zero waits indefinitely.
	MaxWait time.Duration
	// FrameBuffer is the initial capacity of the plugin frame buffer and the
	// capacity of the EvaluateStream channel.
	FrameBuffer int

	Logger *zerolog.Logger
}

func (c TextConfig) withDefaults() TextConfig {
	if c.Feature.IsZero() {
		c.Feature = types.FeatureGPTCPU
	}
	if c.ModelGUID == "" {
		c.ModelGUID = DefaultModelGUID
	}
	if c.NumThreads <= 0 {
		c.NumThreads = DefaultNumThreads
	}
	if c.VRAMBudgetMB <= 0 {
		c.VRAMBudgetMB = DefaultVRAMBudgetMB
	}
	if c.TokensToPredict <= 0 {
		c.TokensToPredict = DefaultTokensToPredict
	}
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	if c.Filter == nil {
		c.Filter = MarkerFilter{Marker: c.Marker}
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = DefaultFrameBuffer
	}
	return c
}

// Prompt is the input of one evaluation. Empty System and Assistant are left
// out of the request.
type Prompt struct {
	System    string
	User      string
	Assistant string
}

// slots lists the user slot first, then the optional system and assistant.
func (p Prompt) slots() feature.Slots {
	out := feature.Slots{{Name: feature.SlotUser, Text: p.User}}
	if p.System != "" {
		out = append(out, feature.Slot{Name: feature.SlotSystem, Text: p.System})
	}
	if p.Assistant != "" {
		out = append(out, feature.Slot{Name: feature.SlotAssistant, Text: p.Assistant})
	}
	return out
}

// Result is the outcome of a completed evaluation.
type Result struct {
	Text     string
	State    feature.State
	Duration time.Duration
}

// Chunk is one filtered fragment of a streamed evaluation. The last chunk has
// Done set and carries the terminal state.
type Chunk struct {
	Text  string
	State feature.State
	Done  bool
	// Err is set on a Done chunk whose terminal state is not done.
	Err error
}
