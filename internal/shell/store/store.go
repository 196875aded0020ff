package store

import (
	"context"

	"github.com/artpar/minideploy/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store persists deployment records.
//
// Every mutating method writes its whole field set in a single statement, so
// a concurrent reader sees either the previous or the new values, never a
// mix.
type Store interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeployment(ctx context.Context, id string) (*domain.Deployment, error)
	ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error)
	DeleteDeployment(ctx context.Context, id string) error

	// Pipeline updates
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	AppendBuildLog(ctx context.Context, id, text string) error
	MarkRunning(ctx context.Context, id, containerHandle string) error
	FailDeployment(ctx context.Context, id, diagnostic string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options. A zero Limit lists everything.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// sqlLimit maps a zero Limit to SQLite's "no limit".
func (o ListOptions) sqlLimit() int {
	if o.Limit == 0 {
		return -1
	}
	return o.Limit
}
