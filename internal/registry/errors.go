package registry

import "errors"

var (
	// ErrCoreNotLoaded is returned by feature and session operations before
	// LoadCore succeeds or after UnloadCore.
	ErrCoreNotLoaded = errors.New("core not loaded")
	// ErrFeatureInUse refuses a second load of a feature id that is still loaded.
	ErrFeatureInUse = errors.New("feature already loaded")
	// ErrFeatureNotLoaded is returned when unloading an id the registry does not hold.
	ErrFeatureNotLoaded = errors.New("feature not loaded")
	// ErrUnknownSessionKind is returned for a session kind without a factory.
	ErrUnknownSessionKind = errors.New("unknown session kind")
)

// IsCoreNotLoaded reports whether err is ErrCoreNotLoaded.
func IsCoreNotLoaded(err error) bool { return errors.Is(err, ErrCoreNotLoaded) }

// IsFeatureInUse reports whether err is ErrFeatureInUse.
func IsFeatureInUse(err error) bool { return errors.Is(err, ErrFeatureInUse) }
