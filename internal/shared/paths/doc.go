// Package paths provides standardized filesystem paths.
//
// All on-disk state lives under one data root:
//
// # Directory Structure
//
//	<root>/
//	  ├── workspaces/    (durable local tier: <user>.workspace, <user>.workspace.bak)
//	  ├── store/         (remote store backend: layouts.db)
//	  └── modules/       (module manifests, *.yaml / *.toml)
//
// # Usage
//
//	root := paths.New("/var/lib/workspace")
//	if err := root.Ensure(); err != nil {
//	    return err
//	}
//	file := paths.RecordFile(root.Workspaces(), "alice")  // .../workspaces/alice.workspace
package paths
