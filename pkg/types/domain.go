package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FeatureID identifies a loadable plugin feature (vendor + feature + backend).
// Two ids are the same feature when their bytes are equal.
type FeatureID uuid.UUID

// ParseFeatureID parses the canonical uuid form, with or without braces.
func ParseFeatureID(s string) (FeatureID, error) {
	u, err := uuid.Parse(strings.Trim(strings.TrimSpace(s), "{}"))
	if err != nil {
		return FeatureID{}, fmt.Errorf("feature id %q: %w", s, err)
	}
	return FeatureID(u), nil
}

// MustFeatureID is ParseFeatureID for package-level constants.
func MustFeatureID(s string) FeatureID {
	id, err := ParseFeatureID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (f FeatureID) String() string { return uuid.UUID(f).String() }

// IsZero reports whether f is the zero id.
func (f FeatureID) IsZero() bool { return f == FeatureID{} }

func (f FeatureID) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FeatureID) UnmarshalText(b []byte) error {
	id, err := ParseFeatureID(string(b))
	if err != nil {
		return err
	}
	*f = id
	return nil
}

// Well-known features.
var (
	// FeatureGPTCUDA is the GGML text-generation plugin running on CUDA (compute in graphics).
	FeatureGPTCUDA = MustFeatureID("54bbefba-535f-4d77-9c3f-4638392d23ac")
	// FeatureGPTCPU is the GGML text-generation plugin running on the CPU.
	FeatureGPTCPU = MustFeatureID("1119fd8b-fc4b-425d-a372-cc5b0cac4b26")
)

// InterfaceKind tags the interface type requested from a loaded plugin.
type InterfaceKind uuid.UUID

func (k InterfaceKind) String() string { return uuid.UUID(k).String() }

// InterfaceTextGeneration is the general purpose transformer (GPT) interface.
var InterfaceTextGeneration = InterfaceKind(uuid.MustParse("8f3b2e1c-6c57-4d3e-9a8e-2b9c63f1d0a4"))

// VendorID identifies an adapter vendor. Any and None are wildcards, not real vendors.
type VendorID uint32

const (
	VendorAny    VendorID = 0
	VendorNone   VendorID = 0xFFFFFFFF
	VendorNVIDIA VendorID = 0x10DE
	VendorAMD    VendorID = 0x1002
	VendorIntel  VendorID = 0x8086
)

// IsPhysical reports whether v names an actual hardware vendor.
func (v VendorID) IsPhysical() bool { return v != VendorAny && v != VendorNone }

func (v VendorID) String() string {
	switch v {
	case VendorAny:
		return "any"
	case VendorNone:
		return "none"
	case VendorNVIDIA:
		return "nvidia"
	case VendorAMD:
		return "amd"
	case VendorIntel:
		return "intel"
	default:
		return fmt.Sprintf("0x%X", uint32(v))
	}
}

// DriverVersion is a major.minor driver version.
type DriverVersion struct {
	Major uint32 `json:"major" yaml:"major" toml:"major"`
	Minor uint32 `json:"minor" yaml:"minor" toml:"minor"`
}

// Less reports whether d is older than o.
func (d DriverVersion) Less(o DriverVersion) bool {
	if d.Major != o.Major {
		return d.Major < o.Major
	}
	return d.Minor < o.Minor
}

func (d DriverVersion) String() string { return fmt.Sprintf("%d.%d", d.Major, d.Minor) }

// AdapterInfo describes a discovered compute adapter. Immutable after discovery.
type AdapterInfo struct {
	Name         string        `json:"name,omitempty" yaml:"name" toml:"name"`
	Vendor       VendorID      `json:"vendor" yaml:"vendor" toml:"vendor"`
	Architecture uint32        `json:"architecture" yaml:"architecture" toml:"architecture"`
	Driver       DriverVersion `json:"driver" yaml:"driver" toml:"driver"`
	VRAMMB       uint64        `json:"vram_mb,omitempty" yaml:"vram_mb" toml:"vram_mb"`
}

// PluginRequirement is the hardware a discovered plugin needs.
type PluginRequirement struct {
	Feature              FeatureID     `json:"feature"`
	Name                 string        `json:"name"`
	RequiredVendor       VendorID      `json:"required_vendor"`
	RequiredArchitecture uint32        `json:"required_architecture"`
	RequiredDriver       DriverVersion `json:"required_driver"`
}

// GraphicsAPI is the graphics API the host renderer is running on.
type GraphicsAPI int

const (
	APINone GraphicsAPI = iota
	APID3D12
	APIVulkan
)

func (a GraphicsAPI) String() string {
	switch a {
	case APID3D12:
		return "d3d12"
	case APIVulkan:
		return "vulkan"
	default:
		return "none"
	}
}

// ParseGraphicsAPI accepts "", "none", "d3d12" and "vulkan" (case-insensitive).
func ParseGraphicsAPI(s string) (GraphicsAPI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "cpu":
		return APINone, nil
	case "d3d12", "dx12":
		return APID3D12, nil
	case "vulkan", "vk":
		return APIVulkan, nil
	default:
		return APINone, fmt.Errorf("unknown graphics api %q (expected none, d3d12 or vulkan)", s)
	}
}

// Model represents a model found in the models directory.
type Model struct {
	// GUID of the model, including braces.
	// example: {01F43B70-CE23-42CA-9606-74E80C5ED0B6}
	GUID string `json:"guid" example:"{01F43B70-CE23-42CA-9606-74E80C5ED0B6}"`
	// Plugin directory the model belongs to.
	// example: nvigi.plugin.gpt.ggml
	Plugin string `json:"plugin" example:"nvigi.plugin.gpt.ggml"`
	// Model file name.
	// example: nemotron-mini-4b-instruct.gguf
	Name string `json:"name" example:"nemotron-mini-4b-instruct.gguf"`
	// Absolute path to the model file on disk.
	Path string `json:"path"`
	// Size in MB (rounded down, minimum 1).
	// example: 2800
	SizeMB int `json:"size_mb" example:"2800"`
}
