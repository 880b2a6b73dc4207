package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/zap"
)

// Render produces the tab's view inside an isolation boundary. Errors and
// panics raised by the module become an error view for this tab only.
func (l *Loader) Render(ctx context.Context, tab types.Tab) (view *types.View) {
	l.mu.Lock()
	s, ok := l.tabs[tab.ID]
	var (
		res Resolution
		mod registry.Module
	)
	if ok {
		res, mod = s.res, s.module
		ok = s.key == tab.ModuleRef.Key()
	}
	l.mu.Unlock()

	if !ok {
		return &types.View{TabID: tab.ID, Kind: types.ViewPending}
	}

	defer func() {
		if r := recover(); r != nil {
			l.log.Error("module render panicked",
				zap.String("tab", tab.ID),
				zap.String("module", res.Module),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			l.metrics.RecordRenderError(res.Module)
			view = types.ErrorView(tab.ID, res.Module, fmt.Errorf("module %s panicked while rendering: %v", res.Module, r))
		}
	}()

	switch res.State {
	case StateReady:
		v, err := mod.Render(ctx, registry.RenderRequest{TabID: tab.ID, Tab: tab.Clone()})
		if err == nil && v == nil {
			err = errors.New("module rendered nothing")
		}
		if err != nil {
			l.metrics.RecordRenderError(res.Module)
			l.log.Warn("module render failed", zap.String("tab", tab.ID), zap.String("module", res.Module), zap.Error(err))
			return types.ErrorView(tab.ID, res.Module, err)
		}
		v.TabID = tab.ID
		if v.Kind == "" {
			v.Kind = types.ViewContent
		}
		if v.Module == "" {
			v.Module = res.Module
		}
		return v

	case StateConnected:
		frame := *res.Frame
		frame.Sandbox = append([]string(nil), res.Frame.Sandbox...)
		frame.Allow = append([]string(nil), res.Frame.Allow...)
		return &types.View{TabID: tab.ID, Kind: types.ViewFrame, Module: res.Module, Title: tab.Name, Frame: &frame}

	case StateError:
		return types.ErrorView(tab.ID, res.Module, errors.New(res.Err))

	default:
		return &types.View{TabID: tab.ID, Kind: types.ViewPending, Module: res.Module}
	}
}
