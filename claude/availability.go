package claude

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const availabilityKey = "availability"

// Availability answers "can a session be started right now"
type Availability struct {
	Available      bool   `json:"available"`
	Version        string `json:"version,omitempty"`
	ExecutablePath string `json:"executablePath,omitempty"`
	Error          string `json:"error,omitempty"`
}

func newAvailabilityCache(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return cache.New(ttl, 2*ttl)
}

// CheckAvailability locates the CLI and reads its version. The answer is
// cached so UI polling does not spawn the CLI every time.
func (o *Orchestrator) CheckAvailability(ctx context.Context) Availability {
	if cached, ok := o.availability.Get(availabilityKey); ok {
		return cached.(Availability)
	}

	result := o.probeAvailability(ctx)
	o.availability.SetDefault(availabilityKey, result)
	return result
}

// RefreshAvailability drops both caches and probes again
func (o *Orchestrator) RefreshAvailability(ctx context.Context) Availability {
	o.invalidateAvailability()
	return o.CheckAvailability(ctx)
}

func (o *Orchestrator) invalidateAvailability() {
	o.availability.Delete(availabilityKey)
	o.locator.Invalidate()
}

func (o *Orchestrator) probeAvailability(ctx context.Context) Availability {
	path, err := o.locator.Locate(ctx)
	if err != nil {
		return Availability{Error: err.Error()}
	}

	version, err := o.locator.Version(ctx, path)
	if err != nil {
		return Availability{ExecutablePath: path, Error: err.Error()}
	}
	return Availability{Available: true, Version: version, ExecutablePath: path}
}
