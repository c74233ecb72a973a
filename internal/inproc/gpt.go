package inproc

import (
	"fmt"
	"strings"
	"sync"

	"inferhost/internal/core"
	"inferhost/internal/feature"
	"inferhost/internal/models"
	"inferhost/internal/params"
	"inferhost/pkg/types"
)

// model is a loaded llama model. The llama build tag selects the real one.
type model interface {
	predict(prompt string, opts predictOptions, onToken func(string) bool) (string, error)
	free()
}

type predictOptions struct {
	tokens  int
	threads int
	seed    int
}

// loadModelFn is swapped in tests.
var loadModelFn = loadModel

type gptPlugin struct {
	lib *Library
}

func (p *gptPlugin) Feature() types.FeatureID  { return types.FeatureGPTCPU }
func (p *gptPlugin) Kind() types.InterfaceKind { return types.InterfaceTextGeneration }

func (p *gptPlugin) CreateInstance(chain *params.Chain) (feature.Instance, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: nil chain", params.ErrInvalidBlock)
	}
	common, ok := chain.Common()
	if !ok {
		return nil, fmt.Errorf("%w: missing common block", params.ErrInvalidBlock)
	}
	if api := chain.API(); api != types.APINone {
		p.lib.log(core.MessageWarning, "cpu plugin ignores %s backend block", api)
	}
	dir := common.ModelDir
	if dir == "" {
		dir = p.lib.cfg.ModelsDir
	}
	mdl, err := models.Find(dir, "", common.ModelGUID)
	if err != nil {
		return nil, err
	}
	m, err := loadModelFn(mdl.Path, p.lib.cfg.ContextSize)
	if err != nil {
		p.lib.log(core.MessageError, "load %s: %v", mdl.Path, err)
		return nil, err
	}
	p.lib.log(core.MessageInfo, "loaded model %s (%d MB)", mdl.Name, mdl.SizeMB)
	return &gptInstance{plugin: p, model: m, threads: common.NumThreads}, nil
}

func (p *gptPlugin) DestroyInstance(inst feature.Instance) error {
	gi, ok := inst.(*gptInstance)
	if !ok || gi.plugin != p {
		return &core.ResultError{Op: "destroyInstance", Result: core.ResultInvalidParameter}
	}
	gi.mu.Lock()
	defer gi.mu.Unlock()
	if gi.model != nil {
		gi.model.free()
		gi.model = nil
	}
	return nil
}

type gptInstance struct {
	plugin  *gptPlugin
	threads int

	mu    sync.Mutex // held for the whole prediction
	model model
}

func (gi *gptInstance) EvaluateAsync(ec *feature.ExecutionContext) error {
	if ec == nil || ec.Callback == nil {
		return &core.ResultError{Op: "evaluateAsync", Result: core.ResultInvalidParameter}
	}
	prompt := formatPrompt(ec.Inputs)
	opts := predictOptions{tokens: ec.Runtime.TokensToPredict, threads: gi.threads, seed: int(ec.Runtime.Seed)}
	cb := ec.Callback
	go func() {
		gi.mu.Lock()
		defer gi.mu.Unlock()
		if gi.model == nil {
			cb(nil, feature.StateInvalid)
			return
		}
		_, err := gi.model.predict(prompt, opts, func(tok string) bool {
			return cb(feature.Slots{{Name: feature.SlotResponse, Text: tok}}, feature.StateDataPending) != feature.StateCancel
		})
		if err != nil {
			gi.plugin.lib.log(core.MessageError, "predict: %v", err)
			cb(nil, feature.StateInvalid)
			return
		}
		cb(feature.Slots{{Name: feature.SlotResponse}}, feature.StateDone)
	}()
	return nil
}

// formatPrompt renders the request slots as a plain chat transcript.
func formatPrompt(in feature.Slots) string {
	var b strings.Builder
	if s, ok := in.Find(feature.SlotSystem); ok {
		b.WriteString("System: ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	u, _ := in.Find(feature.SlotUser)
	b.WriteString("User: ")
	b.WriteString(u)
	b.WriteString("\nAssistant:")
	if a, ok := in.Find(feature.SlotAssistant); ok {
		b.WriteString(" ")
		b.WriteString(a)
	}
	return b.String()
}
