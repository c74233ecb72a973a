// Package core loads a core runtime library, runs hardware and plugin
// discovery, and loads feature interfaces by id.
//
// A library is either native (a shared object exporting nvigiInit,
// nvigiShutdown, nvigiLoadInterface and nvigiUnloadInterface) or in-process,
// registered under a name with RegisterInProcess and opened as "inproc:<name>".
package core
