package layout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/multierr"
)

// Seed identifiers are fixed so the working copy and the remembered active
// tab keep resolving across restarts.
const (
	DefaultLayoutID   = "lay_default"
	DefaultLayoutName = "Default"
	AnalyticsTabID    = "tab_analytics"
	AnalyticsTabName  = "Analytics"
	AnalyticsModuleID = "analytics"
)

var (
	// ErrInvalidLayout marks a layout that breaks a structural invariant
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrInvalidOrder marks a reorder request that is not a permutation of the current tabs
	ErrInvalidOrder = errors.New("tab order must be a permutation of the current tabs")
)

// DefaultLayout builds the hard-coded seed layout
func DefaultLayout() types.Layout {
	return types.Layout{
		ID:        DefaultLayoutID,
		Name:      DefaultLayoutName,
		IsDefault: true,
		UpdatedAt: time.Unix(0, 0).UTC(),
		Tabs: []types.Tab{
			{
				ID:        AnalyticsTabID,
				Name:      AnalyticsTabName,
				ModuleRef: types.ModuleRef{Registry: AnalyticsModuleID},
				Kind:      types.TabKindStatic,
				Closable:  false,
			},
		},
	}
}

// ValidateLayout checks the structural invariants of a layout
func ValidateLayout(l *types.Layout) error {
	if l == nil {
		return fmt.Errorf("%w: layout is nil", ErrInvalidLayout)
	}

	var errs error
	if l.ID == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: empty id", ErrInvalidLayout))
	}
	if strings.TrimSpace(l.Name) == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: layout %q has no name", ErrInvalidLayout, l.ID))
	}
	if len(l.Tabs) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: layout %q has no tabs", ErrInvalidLayout, l.ID))
	}

	ids := make(map[string]struct{}, len(l.Tabs))
	names := make(map[string]struct{}, len(l.Tabs))
	for i := range l.Tabs {
		tab := &l.Tabs[i]
		if tab.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: tab %d has empty id", ErrInvalidLayout, i))
		} else if _, dup := ids[tab.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: duplicate tab id %q", ErrInvalidLayout, tab.ID))
		}
		ids[tab.ID] = struct{}{}

		key := strings.ToLower(strings.TrimSpace(tab.Name))
		if key == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: tab %q has no name", ErrInvalidLayout, tab.ID))
		} else if _, dup := names[key]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: duplicate tab name %q", ErrInvalidLayout, tab.Name))
		}
		names[key] = struct{}{}

		if !tab.Kind.Valid() {
			errs = multierr.Append(errs, fmt.Errorf("%w: tab %q has unknown kind %q", ErrInvalidLayout, tab.ID, tab.Kind))
		}
		if err := tab.ModuleRef.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: tab %q: %v", ErrInvalidLayout, tab.ID, err))
		}
	}
	return errs
}
