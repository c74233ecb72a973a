//go:build !((darwin || freebsd || linux || windows) && (amd64 || arm64))

package core

import (
	"fmt"
	"runtime"
)

func openNative(path string) (Library, error) {
	return nil, fmt.Errorf("%w: %s: native libraries unsupported on %s/%s", ErrLibraryLoadFailed, path, runtime.GOOS, runtime.GOARCH)
}
