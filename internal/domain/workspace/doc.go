// Package workspace is the façade over one user's workspace.
//
// A Session bootstraps from the storage tiers, exposes every tab and
// layout operation, validates user input before it reaches the Layout
// Store, keeps module resolutions aligned with the current tabs and fans
// changes out to subscribers. A Manager holds one Session per user.
//
// Example Usage:
//
//	sess, err := workspace.New(ctx, workspace.Options{
//	    User:     "alice",
//	    Local:    localStore,
//	    Volatile: session.NewStore(),
//	    Registry: reg,
//	})
//	tab, err := sess.AddTab(workspace.TabRequest{Name: "My View"})
//	defer sess.Close(ctx)
package workspace
