package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLibraryLoadFailed is fatal: the core library path is empty or could not be opened.
	ErrLibraryLoadFailed = errors.New("core library load failed")
	// ErrEntryPointMissing is fatal: one of the four required exports is absent.
	ErrEntryPointMissing = errors.New("core library entry point missing")
	// ErrInvalidState reports an operation attempted before Initialize (or after Shutdown).
	ErrInvalidState = errors.New("core runtime not initialized")

	// Compatibility outcomes. All are recoverable: disable the feature and continue.
	ErrPluginNotFound       = errors.New("plugin not found")
	ErrIncompatibleHardware = errors.New("incompatible adapter vendor")
	ErrUnsupportedHardware  = errors.New("unsupported adapter architecture")
	ErrDriverOutOfDate      = errors.New("driver out of date")

	// ErrVersionMismatch reports a plugin that cannot serve the requested interface version.
	ErrVersionMismatch = errors.New("interface version not supported")
)

// Result is a status code returned by the core library entry points.
type Result uint32

const (
	ResultOK Result = iota
	ResultDriverOutOfDate
	ResultOSOutOfDate
	ResultNoPluginsFound
	ResultInvalidParameter
	ResultNoSupportedHardwareFound
	ResultMissingInterface
	ResultMissingDynamicLibraryDependency
	ResultInvalidState
	ResultException
	ResultJSONException
	ResultRPCError
	ResultInsufficientResources
	ResultNotReady
	ResultPluginOutOfDate
	ResultDuplicatedPluginID
	ResultNoImplementation
	ResultItemNotFound
)

var resultNames = map[Result]string{
	ResultOK:                              "ok",
	ResultDriverOutOfDate:                 "driver out of date",
	ResultOSOutOfDate:                     "os out of date",
	ResultNoPluginsFound:                  "no plugins found",
	ResultInvalidParameter:                "invalid parameter",
	ResultNoSupportedHardwareFound:        "no supported hardware found",
	ResultMissingInterface:                "missing interface",
	ResultMissingDynamicLibraryDependency: "missing dynamic library dependency",
	ResultInvalidState:                    "invalid state",
	ResultException:                       "exception",
	ResultJSONException:                   "json exception",
	ResultRPCError:                        "rpc error",
	ResultInsufficientResources:           "insufficient resources",
	ResultNotReady:                        "not ready",
	ResultPluginOutOfDate:                 "plugin out of date",
	ResultDuplicatedPluginID:              "duplicated plugin id",
	ResultNoImplementation:                "no implementation",
	ResultItemNotFound:                    "item not found",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result(%d)", uint32(r))
}

// ResultError wraps a non-OK result returned by a library entry point.
type ResultError struct {
	Op     string
	Result Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Result, uint32(e.Result))
}

// Is lets errors.Is match the sentinel a result code corresponds to.
func (e *ResultError) Is(target error) bool {
	switch e.Result {
	case ResultInvalidState:
		return target == ErrInvalidState
	case ResultNoPluginsFound, ResultItemNotFound:
		return target == ErrPluginNotFound
	case ResultNoSupportedHardwareFound:
		return target == ErrUnsupportedHardware
	case ResultDriverOutOfDate:
		return target == ErrDriverOutOfDate
	case ResultPluginOutOfDate, ResultMissingInterface:
		return target == ErrVersionMismatch
	}
	return false
}

// ResultOf converts r to an error, nil for ResultOK.
func ResultOf(op string, r Result) error {
	if r == ResultOK {
		return nil
	}
	return &ResultError{Op: op, Result: r}
}

// IsFatal reports whether err leaves the core unusable (library or entry point failure).
func IsFatal(err error) bool {
	return errors.Is(err, ErrLibraryLoadFailed) || errors.Is(err, ErrEntryPointMissing)
}

// IsIncompatible reports whether err is a compatibility outcome; the caller
// should disable the feature and continue.
func IsIncompatible(err error) bool {
	return errors.Is(err, ErrPluginNotFound) ||
		errors.Is(err, ErrIncompatibleHardware) ||
		errors.Is(err, ErrUnsupportedHardware) ||
		errors.Is(err, ErrDriverOutOfDate)
}
