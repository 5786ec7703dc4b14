package sources

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
)

// ErrUnsupportedPlatform is returned when no adapter provides a capability
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// FetchRequest carries everything an adapter needs for one fetch cycle
type FetchRequest struct {
	TenantID   string
	Connection models.Connection
	Config     *models.MonitoringConfig
	// Since is the incremental floor. Items whose origin timestamp is not
	// after Since are skipped. Zero means no floor.
	Since time.Time
}

// Adapter is implemented by every platform integration. The capability
// interfaces below are optional; callers type-assert for them.
type Adapter interface {
	Platform() models.Platform
}

// MentionFetcher finds posts referencing the tracked terms
type MentionFetcher interface {
	Adapter
	// FetchMentions returns whatever it gathered before a failure alongside
	// the error.
	FetchMentions(ctx context.Context, req FetchRequest) ([]models.Mention, error)
}

// EngagementFetcher pulls comments and direct messages addressed to the
// connected account
type EngagementFetcher interface {
	Adapter
	FetchEngagement(ctx context.Context, req FetchRequest) ([]models.Mention, error)
}

// Replier posts a reply to an item on its origin platform and returns the
// platform id of the new reply
type Replier interface {
	Adapter
	Reply(ctx context.Context, conn models.Connection, target *models.Mention, text string) (string, error)
}

// Registry maps platform identifiers to adapters
type Registry struct {
	adapters map[models.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its platform
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Replier returns the reply capability for p
func (r *Registry) Replier(p models.Platform) (Replier, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, ErrUnsupportedPlatform
	}
	replier, ok := a.(Replier)
	if !ok {
		return nil, ErrUnsupportedPlatform
	}
	return replier, nil
}

// Platforms lists the registered platforms in a stable order
func (r *Registry) Platforms() []models.Platform {
	platforms := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}
