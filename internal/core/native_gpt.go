//go:build (darwin || freebsd || linux || windows) && (amd64 || arm64)

package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"

	"inferhost/internal/feature"
	"inferhost/internal/params"
	"inferhost/pkg/types"
)

func bindNativeText(ni *NativeInterface) (feature.Interface, error) {
	vt := (*cTextGeneration)(ni.ptr)
	if vt.createInstance == 0 || vt.destroyInstance == 0 {
		return nil, fmt.Errorf("%w: %s: incomplete text generation table", feature.ErrUnsupportedInterface, ni.feature)
	}
	t := &nativeText{ni: ni}
	purego.RegisterFunc(&t.create, vt.createInstance)
	purego.RegisterFunc(&t.destroy, vt.destroyInstance)
	return t, nil
}

type nativeText struct {
	ni      *NativeInterface
	create  func(chain unsafe.Pointer, out *unsafe.Pointer) uint32
	destroy func(inst unsafe.Pointer) uint32
}

func (t *nativeText) native() *NativeInterface  { return t.ni }
func (t *nativeText) Feature() types.FeatureID  { return t.ni.feature }
func (t *nativeText) Kind() types.InterfaceKind { return t.ni.kind }

func (t *nativeText) CreateInstance(chain *params.Chain) (feature.Instance, error) {
	if chain == nil || chain.Len() == 0 {
		return nil, fmt.Errorf("%w: empty chain", params.ErrInvalidBlock)
	}
	var pin runtime.Pinner
	defer pin.Unpin()
	var out unsafe.Pointer
	if err := ResultOf("createInstance", Result(t.create(encodeChain(&pin, chain), &out))); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &ResultError{Op: "createInstance", Result: ResultInvalidState}
	}
	ci := (*cInstance)(out)
	if ci.evaluateAsync == 0 {
		_ = t.destroy(out)
		return nil, &ResultError{Op: "createInstance", Result: ResultMissingInterface}
	}
	inst := &nativeInstance{ptr: out}
	purego.RegisterFunc(&inst.eval, ci.evaluateAsync)
	return inst, nil
}

func (t *nativeText) DestroyInstance(inst feature.Instance) error {
	ni, ok := inst.(*nativeInstance)
	if !ok || ni.ptr == nil {
		return &ResultError{Op: "destroyInstance", Result: ResultInvalidParameter}
	}
	return ResultOf("destroyInstance", Result(t.destroy(ni.ptr)))
}

// encodeChain lays the chain out as linked C blocks in chain order.
func encodeChain(pin *runtime.Pinner, chain *params.Chain) unsafe.Pointer {
	var head unsafe.Pointer
	var prev *cBlockHeader
	for _, b := range chain.Blocks() {
		var hdr *cBlockHeader
		var p unsafe.Pointer
		switch v := b.(type) {
		case params.Common:
			c := &cCommon{
				modelDir:     cString(pin, v.ModelDir),
				numThreads:   uint32(v.NumThreads),
				vramBudgetMB: uint64(v.VRAMBudgetMB),
				modelGUID:    cString(pin, v.ModelGUID),
			}
			hdr, p = &c.header, unsafe.Pointer(c)
		case params.D3D12:
			c := &cBackend{device: uintptr(v.Device), queue: uintptr(v.Queue)}
			hdr, p = &c.header, unsafe.Pointer(c)
		case params.Vulkan:
			c := &cBackend{device: uintptr(v.Device), queue: uintptr(v.Queue)}
			hdr, p = &c.header, unsafe.Pointer(c)
		default:
			continue
		}
		hdr.kind = uint32(b.Kind())
		pin.Pin(p)
		if prev == nil {
			head = p
		} else {
			prev.next = p
		}
		prev = hdr
	}
	return head
}

type nativeInstance struct {
	ptr  unsafe.Pointer
	eval func(ctx *cExecutionContext) uint32
}

// pendingEval keeps a submitted context pinned until its terminal callback.
type pendingEval struct {
	cb   feature.Callback
	pin  runtime.Pinner
	once sync.Once
}

func (p *pendingEval) release(id uintptr) {
	p.once.Do(func() {
		pending.Delete(id)
		p.pin.Unpin()
	})
}

var (
	pending    sync.Map // uintptr -> *pendingEval
	nextEvalID atomic.Uintptr
)

func (i *nativeInstance) EvaluateAsync(ec *feature.ExecutionContext) error {
	if ec == nil || ec.Callback == nil {
		return &ResultError{Op: "evaluateAsync", Result: ResultInvalidParameter}
	}
	pe := &pendingEval{cb: ec.Callback}
	rp := &cRuntimeParams{seed: ec.Runtime.Seed, tokensToPredict: int32(ec.Runtime.TokensToPredict)}
	if ec.Runtime.Interactive {
		rp.interactive = 1
	}
	ctx := &cExecutionContext{
		instance: i.ptr,
		callback: evalCallbackPtr(),
		inputs:   encodeSlots(&pe.pin, ec.Inputs),
		runtime:  rp,
	}
	pe.pin.Pin(rp)
	pe.pin.Pin(ctx)
	id := nextEvalID.Add(1)
	ctx.userData = id
	pending.Store(id, pe)
	if err := ResultOf("evaluateAsync", Result(i.eval(ctx))); err != nil {
		pe.release(id)
		return err
	}
	return nil
}

func encodeSlots(pin *runtime.Pinner, slots feature.Slots) *cSlotArray {
	arr := &cSlotArray{}
	pin.Pin(arr)
	if len(slots) == 0 {
		return arr
	}
	items := make([]cSlot, len(slots))
	for n, s := range slots {
		items[n] = cSlot{key: cString(pin, s.Name), text: cString(pin, s.Text), size: uint64(len(s.Text))}
	}
	pin.Pin(&items[0])
	arr.items = &items[0]
	arr.count = uint64(len(items))
	return arr
}

func decodeSlots(arr *cSlotArray) feature.Slots {
	if arr == nil || arr.items == nil || arr.count == 0 {
		return nil
	}
	items := unsafe.Slice(arr.items, arr.count)
	out := make(feature.Slots, 0, len(items))
	for _, s := range items {
		var text string
		if s.text != nil && s.size > 0 {
			text = string(unsafe.Slice(s.text, s.size))
		} else {
			text = goString(s.text)
		}
		out = append(out, feature.Slot{Name: goString(s.key), Text: text})
	}
	return out
}

var evalCallbackPtr = sync.OnceValue(func() uintptr {
	return purego.NewCallback(func(ctx *cExecutionContext, state uintptr, userData uintptr) uintptr {
		v, ok := pending.Load(userData)
		if !ok {
			return uintptr(feature.StateCancel)
		}
		pe := v.(*pendingEval)
		st := feature.State(state)
		var outs feature.Slots
		if ctx != nil {
			outs = decodeSlots(ctx.outputs)
		}
		ret := pe.cb(outs, st)
		if st.Terminal() {
			pe.release(userData)
		}
		return uintptr(ret)
	})
})
