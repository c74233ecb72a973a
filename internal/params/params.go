// Package params holds the creation parameter chain passed to a feature
// interface when an inference instance is created.
//
// A chain is an ordered list of typed blocks: exactly one Common block and at
// most one backend block (D3D12 or Vulkan). The two backend blocks are
// mutually exclusive because the host renderer runs on one graphics API.
package params

import (
	"errors"
	"fmt"
	"strings"

	"inferhost/pkg/types"
)

var (
	// ErrInvalidBlock reports a nil or malformed block.
	ErrInvalidBlock = errors.New("invalid parameter block")
	// ErrBackendConflict reports a second backend block in one chain.
	ErrBackendConflict = errors.New("backend block already chained")
)

// Handle is an opaque, non-owning native handle (device, queue) borrowed from
// the host renderer. The chain never extends its lifetime.
type Handle uintptr

// Kind identifies the block type.
type Kind int

const (
	KindCommon Kind = iota + 1
	KindD3D12
	KindVulkan
)

func (k Kind) String() string {
	switch k {
	case KindCommon:
		return "common"
	case KindD3D12:
		return "d3d12"
	case KindVulkan:
		return "vulkan"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Block is one typed entry of a chain.
type Block interface {
	Kind() Kind
	Validate() error
}

// BackendBlock is a block that binds the instance to a graphics API.
type BackendBlock interface {
	Block
	API() types.GraphicsAPI
}

// Common carries the parameters every feature understands.
type Common struct {
	ModelDir     string
	NumThreads   int
	VRAMBudgetMB int
	ModelGUID    string
}

func (Common) Kind() Kind { return KindCommon }

func (c Common) Validate() error {
	if strings.TrimSpace(c.ModelGUID) == "" {
		return fmt.Errorf("%w: common: model guid is empty", ErrInvalidBlock)
	}
	if c.NumThreads < 0 || c.VRAMBudgetMB < 0 {
		return fmt.Errorf("%w: common: negative thread count or vram budget", ErrInvalidBlock)
	}
	return nil
}

// D3D12 carries the host D3D12 device and direct command queue.
type D3D12 struct {
	Device Handle
	Queue  Handle
}

func (D3D12) Kind() Kind             { return KindD3D12 }
func (D3D12) API() types.GraphicsAPI { return types.APID3D12 }
func (p D3D12) Validate() error      { return validateDeviceQueue("d3d12", p.Device, p.Queue) }

// Vulkan carries the host VkDevice and graphics VkQueue.
type Vulkan struct {
	Device Handle
	Queue  Handle
}

func (Vulkan) Kind() Kind             { return KindVulkan }
func (Vulkan) API() types.GraphicsAPI { return types.APIVulkan }
func (p Vulkan) Validate() error      { return validateDeviceQueue("vulkan", p.Device, p.Queue) }

func validateDeviceQueue(name string, device, queue Handle) error {
	if device == 0 || queue == 0 {
		return fmt.Errorf("%w: %s: device or queue handle is null", ErrInvalidBlock, name)
	}
	return nil
}

// Chain is an ordered list of parameter blocks. The zero value is empty and ready to use.
type Chain struct {
	blocks []Block
}

// Add validates b and appends it. It rejects a second Common block and a
// second backend block; the chain is left unchanged on error.
func (c *Chain) Add(b Block) error {
	if b == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	if err := b.Validate(); err != nil {
		return err
	}
	switch b.(type) {
	case BackendBlock:
		if prev, ok := c.Backend(); ok {
			return fmt.Errorf("%w: have %s, adding %s", ErrBackendConflict, prev.Kind(), b.Kind())
		}
	default:
		for _, have := range c.blocks {
			if have.Kind() == b.Kind() {
				return fmt.Errorf("%w: duplicate %s block", ErrInvalidBlock, b.Kind())
			}
		}
	}
	c.blocks = append(c.blocks, b)
	return nil
}

// Blocks returns the blocks in chain order.
func (c *Chain) Blocks() []Block {
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Len returns the number of chained blocks.
func (c *Chain) Len() int { return len(c.blocks) }

// Common returns the chained Common block.
func (c *Chain) Common() (Common, bool) {
	for _, b := range c.blocks {
		if cb, ok := b.(Common); ok {
			return cb, true
		}
	}
	return Common{}, false
}

// Backend returns the chained backend block, if any.
func (c *Chain) Backend() (BackendBlock, bool) {
	for _, b := range c.blocks {
		if bb, ok := b.(BackendBlock); ok {
			return bb, true
		}
	}
	return nil, false
}

// API returns the graphics API the chain binds to, APINone for CPU-only chains.
func (c *Chain) API() types.GraphicsAPI {
	if bb, ok := c.Backend(); ok {
		return bb.API()
	}
	return types.APINone
}
