// Package backend turns the host's active render system into the parameter
// block that binds a feature instance to the same GPU device.
package backend

import (
	"errors"
	"fmt"

	"inferhost/internal/params"
	"inferhost/pkg/types"
)

// ErrDeviceUnavailable reports an active graphics API without usable handles.
var ErrDeviceUnavailable = errors.New("graphics device unavailable")

// RenderSystem is the host renderer. ActiveAPI returns APINone when nothing
// is rendering.
type RenderSystem interface {
	ActiveAPI() types.GraphicsAPI
}

// D3D12Renderer exposes the D3D12 device and direct command queue.
type D3D12Renderer interface {
	D3D12Device() params.Handle
	D3D12CommandQueue() params.Handle
}

// VulkanRenderer exposes the Vulkan logical device and graphics queue.
type VulkanRenderer interface {
	VulkanDevice() params.Handle
	VulkanGraphicsQueue() params.Handle
}

// Provider builds backend parameter blocks from a RenderSystem.
type Provider struct {
	rs RenderSystem
}

// NewProvider returns a provider for rs. rs may be nil.
func NewProvider(rs RenderSystem) *Provider { return &Provider{rs: rs} }

// Parameters returns the backend block for the active API, (nil, nil) when no
// backend is active, or ErrDeviceUnavailable when the active API has no
// device or queue to offer.
func (p *Provider) Parameters() (params.Block, error) {
	if p == nil || p.rs == nil {
		return nil, nil
	}
	switch api := p.rs.ActiveAPI(); api {
	case types.APINone:
		return nil, nil
	case types.APID3D12:
		r, ok := p.rs.(D3D12Renderer)
		if !ok {
			return nil, fmt.Errorf("%w: %s: render system has no device accessors", ErrDeviceUnavailable, api)
		}
		blk := params.D3D12{Device: r.D3D12Device(), Queue: r.D3D12CommandQueue()}
		if blk.Device == 0 || blk.Queue == 0 {
			return nil, fmt.Errorf("%w: %s: device=%#x queue=%#x", ErrDeviceUnavailable, api, blk.Device, blk.Queue)
		}
		return blk, nil
	case types.APIVulkan:
		r, ok := p.rs.(VulkanRenderer)
		if !ok {
			return nil, fmt.Errorf("%w: %s: render system has no device accessors", ErrDeviceUnavailable, api)
		}
		blk := params.Vulkan{Device: r.VulkanDevice(), Queue: r.VulkanGraphicsQueue()}
		if blk.Device == 0 || blk.Queue == 0 {
			return nil, fmt.Errorf("%w: %s: device=%#x queue=%#x", ErrDeviceUnavailable, api, blk.Device, blk.Queue)
		}
		return blk, nil
	default:
		return nil, fmt.Errorf("%w: unknown api %d", ErrDeviceUnavailable, api)
	}
}

// IsDeviceUnavailable reports whether err is ErrDeviceUnavailable.
func IsDeviceUnavailable(err error) bool { return errors.Is(err, ErrDeviceUnavailable) }

// Static is a RenderSystem with fixed handles, for headless hosts that
// receive handles from configuration and for tests.
type Static struct {
	API    types.GraphicsAPI
	Device params.Handle
	Queue  params.Handle
}

func (s Static) ActiveAPI() types.GraphicsAPI       { return s.API }
func (s Static) D3D12Device() params.Handle         { return s.Device }
func (s Static) D3D12CommandQueue() params.Handle   { return s.Queue }
func (s Static) VulkanDevice() params.Handle        { return s.Device }
func (s Static) VulkanGraphicsQueue() params.Handle { return s.Queue }
