// Package layout implements the in-memory Layout Store.
//
// The store is the sole mutator of a user's tabs and layouts. Every
// operation is a synchronous state transition that stamps updatedAt on the
// affected layout and performs no I/O; persistence and module resolution
// observe it through Observe.
//
// Invariants:
//   - Every layout keeps at least one tab
//   - Non-closable tabs are never removed
//   - The active tab always resolves inside the current layout
//   - The seed default is never overwritten; edits to it live in a working copy
//
// Example Usage:
//
//	store, err := layout.NewStore(layout.DefaultLayout())
//	tab := store.AddTab(layout.TabSpec{Name: "My View", Closable: layout.Bool(true)})
//	saved := store.SaveCurrentLayout("Workspace A")
package layout
