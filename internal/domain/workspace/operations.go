package workspace

import (
	"encoding/json"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/utils"
)

// TabRequest describes a tab to add
type TabRequest struct {
	Name       string          `json:"name"`
	ModuleRef  types.ModuleRef `json:"module_ref"`
	Kind       types.TabKind   `json:"kind,omitempty"`
	Closable   *bool           `json:"closable,omitempty"`
	GridLayout json.RawMessage `json:"grid_layout,omitempty"`
}

// TabUpdate changes a tab's name or module. Nil fields are untouched.
type TabUpdate struct {
	Name      *string          `json:"name,omitempty"`
	ModuleRef *types.ModuleRef `json:"module_ref,omitempty"`
}

// SubComponentUpdate moves or reconfigures a sub-component. Nil fields are untouched.
type SubComponentUpdate struct {
	Rect  *types.Rect            `json:"rect,omitempty"`
	Props map[string]interface{} `json:"props,omitempty"`
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// AddTab appends a tab to the current layout and makes it active.
// Names are sanitised and must be unique (case-insensitive) in the layout.
func (s *Session) AddTab(req TabRequest) (types.Tab, error) {
	var tab types.Tab
	err := s.op(func() error {
		name, err := utils.ValidateName(req.Name, "tab name")
		if err != nil {
			return invalid(err)
		}
		current := s.store.Current()
		if err := checkUniqueTabName(&current, name, ""); err != nil {
			return err
		}

		kind := req.Kind
		if kind == "" {
			kind = types.TabKindStatic
		}
		if !kind.Valid() {
			return invalid(fmt.Errorf("unknown tab kind %q", kind))
		}

		ref := req.ModuleRef
		if ref.Registry == "" && ref.Link == nil {
			ref.Registry = registry.WelcomeModule
			if kind == types.TabKindDynamic {
				ref.Registry = registry.GridModule
			}
		}
		if err := ref.Validate(); err != nil {
			return invalid(err)
		}
		if kind != types.TabKindDynamic && len(req.GridLayout) > 0 {
			return ErrNotDynamic
		}
		if err := utils.ValidateGridLayout(req.GridLayout); err != nil {
			return invalid(err)
		}

		tab = s.store.AddTab(layout.TabSpec{
			Name:       name,
			ModuleRef:  ref,
			Kind:       kind,
			Closable:   req.Closable,
			GridLayout: req.GridLayout,
		})
		return nil
	})
	return tab, err
}

// RemoveTab removes a closable tab that is not the last one
func (s *Session) RemoveTab(tabID string) error {
	return s.op(func() error {
		current := s.store.Current()
		idx := current.TabIndex(tabID)
		switch {
		case idx < 0:
			return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
		case !current.Tabs[idx].Closable:
			return fmt.Errorf("%w: %s cannot be closed", ErrProtectedTab, current.Tabs[idx].Name)
		case len(current.Tabs) == 1:
			return ErrLastTab
		}
		s.store.RemoveTab(tabID)
		return nil
	})
}

// RenameTab changes a tab's label
func (s *Session) RenameTab(tabID, name string) (types.Tab, error) {
	return s.UpdateTab(tabID, TabUpdate{Name: &name})
}

// UpdateTab renames a tab or replaces its module reference
func (s *Session) UpdateTab(tabID string, update TabUpdate) (types.Tab, error) {
	var tab types.Tab
	err := s.op(func() error {
		current := s.store.Current()
		if !current.HasTab(tabID) {
			return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
		}

		var patch layout.TabPatch
		if update.Name != nil {
			name, err := utils.ValidateName(*update.Name, "tab name")
			if err != nil {
				return invalid(err)
			}
			if err := checkUniqueTabName(&current, name, tabID); err != nil {
				return err
			}
			patch.Name = &name
		}
		if update.ModuleRef != nil {
			if err := update.ModuleRef.Validate(); err != nil {
				return invalid(err)
			}
			ref := update.ModuleRef.Clone()
			patch.ModuleRef = &ref
		}

		tab, _ = s.store.UpdateTab(tabID, patch)
		return nil
	})
	return tab, err
}

// ToggleEditMode flips a tab's edit mode. Non-closable tabs are exempt.
func (s *Session) ToggleEditMode(tabID string) (types.Tab, error) {
	var tab types.Tab
	err := s.op(func() error {
		current, ok := s.store.Tab(tabID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
		}
		if !current.Closable {
			return fmt.Errorf("%w: %s has a fixed layout", ErrProtectedTab, current.Name)
		}
		tab, _ = s.store.UpdateTab(tabID, layout.TabPatch{EditMode: layout.Bool(!current.EditMode)})
		return nil
	})
	return tab, err
}

// SetGridLayout stores the serialized grid geometry of a dynamic tab in edit mode
func (s *Session) SetGridLayout(tabID string, grid json.RawMessage) (types.Tab, error) {
	var tab types.Tab
	err := s.op(func() error {
		if _, err := s.editableGrid(tabID); err != nil {
			return err
		}
		if err := utils.ValidateGridLayout(grid); err != nil {
			return invalid(err)
		}
		raw := append(json.RawMessage(nil), grid...)
		tab, _ = s.store.UpdateTab(tabID, layout.TabPatch{GridLayout: &raw})
		return nil
	})
	return tab, err
}

// AddSubComponent places a sub-component on a dynamic tab in edit mode
func (s *Session) AddSubComponent(tabID string, sc types.SubComponent) (types.SubComponent, error) {
	var added types.SubComponent
	err := s.op(func() error {
		tab, err := s.editableGrid(tabID)
		if err != nil {
			return err
		}
		if err := validateSubComponent(&sc); err != nil {
			return err
		}
		if sc.ID == "" {
			sc.ID = string(id.NewSubComponentID())
		}
		for _, existing := range tab.SubComponents {
			if existing.ID == sc.ID {
				return invalid(fmt.Errorf("sub-component %s already exists", sc.ID))
			}
		}

		subs := append(tab.SubComponents, sc.Clone())
		s.store.UpdateTab(tabID, layout.TabPatch{SubComponents: &subs})
		added = sc.Clone()
		return nil
	})
	return added, err
}

// UpdateSubComponent moves or reconfigures a sub-component. Moving requires
// edit mode; props can change at any time.
func (s *Session) UpdateSubComponent(tabID, subID string, update SubComponentUpdate) (types.SubComponent, error) {
	var updated types.SubComponent
	err := s.op(func() error {
		tab, err := s.gridTab(tabID)
		if err != nil {
			return err
		}
		if update.Rect != nil && !tab.EditMode {
			return ErrNotEditable
		}

		subs := tab.SubComponents
		idx := subComponentIndex(subs, subID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrSubComponentNotFound, subID)
		}
		sc := subs[idx]
		if update.Rect != nil {
			sc.Rect = *update.Rect
		}
		if update.Props != nil {
			sc.Props = update.Props
		}
		if err := validateSubComponent(&sc); err != nil {
			return err
		}
		subs[idx] = sc.Clone()

		s.store.UpdateTab(tabID, layout.TabPatch{SubComponents: &subs})
		updated = sc.Clone()
		return nil
	})
	return updated, err
}

// RemoveSubComponent deletes a sub-component from a dynamic tab in edit mode
func (s *Session) RemoveSubComponent(tabID, subID string) error {
	return s.op(func() error {
		tab, err := s.editableGrid(tabID)
		if err != nil {
			return err
		}
		idx := subComponentIndex(tab.SubComponents, subID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrSubComponentNotFound, subID)
		}
		subs := append(tab.SubComponents[:idx:idx], tab.SubComponents[idx+1:]...)
		s.store.UpdateTab(tabID, layout.TabPatch{SubComponents: &subs})
		return nil
	})
}

// ReorderTabs applies a drag-reorder; order must be a permutation of the current tabs
func (s *Session) ReorderTabs(order []string) error {
	return s.op(func() error {
		return s.store.ReorderTabs(order)
	})
}

// SetActiveTab foregrounds a tab
func (s *Session) SetActiveTab(tabID string) error {
	return s.op(func() error {
		if !s.store.SetActiveTab(tabID) {
			return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
		}
		return nil
	})
}

// SaveCurrentLayout saves the current tabs as a new layout and switches to it
func (s *Session) SaveCurrentLayout(name string) (types.Layout, error) {
	var saved types.Layout
	err := s.op(func() error {
		clean, err := utils.ValidateName(name, "layout name")
		if err != nil {
			return invalid(err)
		}
		for _, l := range s.store.Layouts() {
			if utils.SameName(l.Name, clean) {
				return fmt.Errorf("%w: layout %q", ErrDuplicateName, clean)
			}
		}
		saved = s.store.SaveCurrentLayout(clean)
		return nil
	})
	return saved, err
}

// LoadLayout switches to a stored layout
func (s *Session) LoadLayout(layoutID string) error {
	return s.op(func() error {
		if !s.store.LoadLayout(layoutID) {
			return fmt.Errorf("%w: %s", ErrLayoutNotFound, layoutID)
		}
		return nil
	})
}

// DeleteLayout removes a user layout
func (s *Session) DeleteLayout(layoutID string) error {
	return s.op(func() error {
		if layoutID == s.store.DefaultLayoutID() {
			return ErrProtectedLayout
		}
		if !s.store.DeleteLayout(layoutID) {
			return fmt.Errorf("%w: %s", ErrLayoutNotFound, layoutID)
		}
		return nil
	})
}

// ResetToDefault discards the working copy and returns to the seed layout
func (s *Session) ResetToDefault() error {
	return s.op(func() error {
		s.store.ResetToDefault()
		return nil
	})
}

func (s *Session) gridTab(tabID string) (types.Tab, error) {
	tab, ok := s.store.Tab(tabID)
	if !ok {
		return types.Tab{}, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	if tab.Kind != types.TabKindDynamic {
		return types.Tab{}, fmt.Errorf("%w: %s", ErrNotDynamic, tab.Name)
	}
	return tab, nil
}

func (s *Session) editableGrid(tabID string) (types.Tab, error) {
	tab, err := s.gridTab(tabID)
	if err != nil {
		return tab, err
	}
	if !tab.EditMode {
		return types.Tab{}, fmt.Errorf("%w: %s", ErrNotEditable, tab.Name)
	}
	return tab, nil
}

func checkUniqueTabName(l *types.Layout, name, exceptID string) error {
	for _, tab := range l.Tabs {
		if tab.ID != exceptID && utils.SameName(tab.Name, name) {
			return fmt.Errorf("%w: tab %q", ErrDuplicateName, name)
		}
	}
	return nil
}

func validateSubComponent(sc *types.SubComponent) error {
	if sc.ID != "" {
		if err := utils.ValidateID(sc.ID, "sub-component id", false); err != nil {
			return invalid(err)
		}
	}
	if err := utils.ValidateString(sc.Type, "sub-component type", 1, utils.MaxNameLength, true); err != nil {
		return invalid(err)
	}
	if sc.Rect.W <= 0 || sc.Rect.H <= 0 || sc.Rect.X < 0 || sc.Rect.Y < 0 {
		return invalid(fmt.Errorf("sub-component rectangle %+v is out of bounds", sc.Rect))
	}
	if err := utils.ValidateProps(sc.Props); err != nil {
		return invalid(err)
	}
	return nil
}

func subComponentIndex(subs []types.SubComponent, subID string) int {
	for i := range subs {
		if subs[i].ID == subID {
			return i
		}
	}
	return -1
}
