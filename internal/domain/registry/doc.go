// Package registry is the catalogue of local content modules.
//
// Each entry maps a module id to an asynchronous loader and descriptive
// metadata. The catalogue is a lookup table and holds no per-tab state.
//
// Components:
//   - Manager: Register, IsRegistered, List, Lookup and Load
//   - Seeder: registers static-content modules from YAML or TOML manifests
//     and hot-registers new manifests while watching the directory
//
// Manifest format:
//
//	modules:
//	  - id: docs
//	    name: Documentation
//	    title: Getting started
//	    body: "<p>Welcome</p>"
//
// Example Usage:
//
//	reg := registry.NewManager(registry.WithLogger(log))
//	_ = registry.RegisterBuiltins(reg)
//	mod, err := reg.Load(ctx, "analytics")
package registry
