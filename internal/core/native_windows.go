//go:build windows && (amd64 || arm64)

package core

import "golang.org/x/sys/windows"

type dllModule struct{ dll *windows.DLL }

func loadModule(path string) (module, error) {
	d, err := windows.LoadDLL(path)
	if err != nil {
		return nil, err
	}
	return dllModule{dll: d}, nil
}

func (m dllModule) sym(name string) (uintptr, error) {
	p, err := m.dll.FindProc(name)
	if err != nil {
		return 0, err
	}
	return p.Addr(), nil
}

func (m dllModule) close() error { return m.dll.Release() }
