package codec

import (
	"context"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
)

// StaticProvider answers every Resolve with the same context. Used when no
// remote provider is configured.
type StaticProvider struct {
	Context pipeline.SessionContext
}

var _ pipeline.ContextProvider = StaticProvider{}

// Resolve returns the fixed context.
func (p StaticProvider) Resolve(context.Context, string, string) (pipeline.SessionContext, error) {
	return p.Context, nil
}

// FromDevice derives a context from a device hint alone. Desktops get the
// high profile, everything else medium.
func FromDevice(d behavior.DeviceHint, permitted bool) pipeline.SessionContext {
	d = d.Normalize()
	profile := adaptation.ProfileMedium
	if d == behavior.DeviceDesktop {
		profile = adaptation.ProfileHigh
	}
	return pipeline.SessionContext{Device: d, Profile: profile, EnhancementPermitted: permitted}
}
