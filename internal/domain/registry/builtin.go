package registry

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/multierr"
)

// Builtin module ids
const (
	AnalyticsModule = "analytics"
	WelcomeModule   = "welcome"
	GridModule      = "grid"
)

// StaticModule renders fixed content
type StaticModule struct {
	ID    string
	Title string
	Body  string
}

// Render implements Module
func (s StaticModule) Render(ctx context.Context, req RenderRequest) (*types.View, error) {
	return &types.View{
		TabID:  req.TabID,
		Kind:   types.ViewContent,
		Module: s.ID,
		Title:  s.Title,
		Body:   s.Body,
	}, nil
}

// gridModule renders a dynamic tab's sub-component placements
type gridModule struct{}

func (gridModule) Render(ctx context.Context, req RenderRequest) (*types.View, error) {
	placements := make([]interface{}, 0, len(req.Tab.SubComponents))
	for _, sc := range req.Tab.SubComponents {
		placements = append(placements, map[string]interface{}{
			"id":   sc.ID,
			"type": sc.Type,
			"rect": map[string]interface{}{"x": sc.Rect.X, "y": sc.Rect.Y, "w": sc.Rect.W, "h": sc.Rect.H},
		})
	}
	return &types.View{
		TabID:  req.TabID,
		Kind:   types.ViewContent,
		Module: GridModule,
		Title:  req.Tab.Name,
		Data: map[string]interface{}{
			"edit_mode":      req.Tab.EditMode,
			"sub_components": placements,
		},
	}, nil
}

func static(mod Module) Loader {
	return func(ctx context.Context) (Module, error) { return mod, nil }
}

// RegisterBuiltins adds the modules every workspace can reference
func RegisterBuiltins(m *Manager) error {
	var errs error
	register := func(id, name string, mod Module, desc string) {
		if err := m.Register(id, name, static(mod), WithSource(SourceBuiltin), WithDescription(desc)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("builtin %s: %w", id, err))
		}
	}

	register(AnalyticsModule, "Analytics", StaticModule{
		ID:    AnalyticsModule,
		Title: "Analytics",
		Body:  "Portfolio analytics overview",
	}, "Default analytics dashboard")
	register(WelcomeModule, "Welcome", StaticModule{
		ID:    WelcomeModule,
		Title: "Welcome",
		Body:  "Add a tab to start building your workspace",
	}, "Placeholder for new tabs")
	register(GridModule, "Grid", gridModule{}, "Free-form grid host for dynamic tabs")
	return errs
}
