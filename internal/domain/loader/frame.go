package loader

import (
	"sort"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
)

// baseSandbox is granted to every frame
const baseSandbox = "allow-scripts"

// Capabilities a component link may declare, mapped to the sandbox token
// or permission-policy feature they unlock.
var (
	sandboxCapabilities = map[string]string{
		"forms":       "allow-forms",
		"popups":      "allow-popups",
		"modals":      "allow-modals",
		"downloads":   "allow-downloads",
		"same-origin": "allow-same-origin",
	}
	allowCapabilities = map[string]string{
		"clipboard-read":  "clipboard-read",
		"clipboard-write": "clipboard-write",
		"fullscreen":      "fullscreen",
		"camera":          "camera",
		"microphone":      "microphone",
		"geolocation":     "geolocation",
	}
)

// FrameFor builds the least-privilege frame for a network-hosted module.
// Capabilities that are not recognised are returned and granted nothing.
func FrameFor(link *types.ComponentLink) (types.Frame, []string) {
	frame := types.Frame{URL: link.URL(), Sandbox: []string{baseSandbox}}

	var unknown []string
	sandbox := map[string]struct{}{baseSandbox: {}}
	allow := map[string]struct{}{}
	for _, capability := range link.Capabilities {
		if token, ok := sandboxCapabilities[capability]; ok {
			if _, dup := sandbox[token]; !dup {
				sandbox[token] = struct{}{}
				frame.Sandbox = append(frame.Sandbox, token)
			}
			continue
		}
		if feature, ok := allowCapabilities[capability]; ok {
			if _, dup := allow[feature]; !dup {
				allow[feature] = struct{}{}
				frame.Allow = append(frame.Allow, feature)
			}
			continue
		}
		unknown = append(unknown, capability)
	}

	sort.Strings(frame.Sandbox[1:])
	sort.Strings(frame.Allow)
	return frame, unknown
}
