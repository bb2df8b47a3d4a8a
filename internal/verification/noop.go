package verification

import (
	"context"
	"fmt"
)

// Noop is used for networks without a verification provider
type Noop struct{}

// Name returns the service identifier
func (Noop) Name() string {
	return "none"
}

// Verify always fails with ErrNotConfigured
func (Noop) Verify(context.Context, Request) (*Result, error) {
	return nil, fmt.Errorf("%w: no verification provider for this network", ErrNotConfigured)
}
