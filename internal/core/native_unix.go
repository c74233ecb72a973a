//go:build (darwin || freebsd || linux) && (amd64 || arm64)

package core

import "github.com/ebitengine/purego"

type dlModule struct{ handle uintptr }

func loadModule(path string) (module, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return dlModule{handle: h}, nil
}

func (m dlModule) sym(name string) (uintptr, error) { return purego.Dlsym(m.handle, name) }
func (m dlModule) close() error                     { return purego.Dlclose(m.handle) }
