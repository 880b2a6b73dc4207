// Package types provides shared data structures for the workspace backend.
//
// This package defines the workspace data model used across all components,
// ensuring every tier (memory, volatile, local, remote) shares one shape.
//
// Core Types:
//   - Tab: One hosted slot (registry module or component link)
//   - Layout: Named, ordered collection of tabs
//   - Record: Durable per-user record (layouts + active/default pointers)
//   - ModuleRef, ComponentLink: Content references
//   - HealthCheckConfig, AuthConfig: Network module configuration
//   - SyncState: Remote tier reachability
//
// Serialization:
//   - EncodeRecord/DecodeRecord and EncodeLayout/DecodeLayout (sonic, std-compatible)
//   - Duration serialises as a Go duration string
//
// Example Usage:
//
//	layout := types.Layout{
//	    ID:   string(id.NewLayoutID()),
//	    Name: "Trading",
//	    Tabs: []types.Tab{{ID: string(id.NewTabID()), Name: "Positions"}},
//	}
//	data, err := types.EncodeLayout(&layout)
package types
