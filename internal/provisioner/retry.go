package provisioner

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
)

// WithRetry wraps p so each call gets one bounded retry before its error is
// surfaced as ferrors.ProvisionerFailure by the caller. The reconciler tick
// already provides the outer retry loop (a failed call this tick is simply
// retried next tick), so this only smooths over single transient blips
// (a dropped connection, a momentary 5xx) without masking a persistently
// failing provisioner.
func WithRetry(p Provisioner) Provisioner {
	return &retrying{inner: p}
}

type retrying struct {
	inner Provisioner
}

const (
	retryAttempts = 2
	retryDelay    = 50 * time.Millisecond
)

func (r *retrying) Create(ctx context.Context, name string) (string, error) {
	var address string
	err := retry.Do(func() error {
		var innerErr error
		address, innerErr = r.inner.Create(ctx, name)
		return innerErr
	}, retry.Attempts(retryAttempts), retry.Delay(retryDelay), retry.Context(ctx))
	return address, err
}

func (r *retrying) Delete(ctx context.Context, address string) error {
	return retry.Do(func() error {
		return r.inner.Delete(ctx, address)
	}, retry.Attempts(retryAttempts), retry.Delay(retryDelay), retry.Context(ctx))
}

func (r *retrying) Status(ctx context.Context, address string) (Status, error) {
	var status Status
	err := retry.Do(func() error {
		var innerErr error
		status, innerErr = r.inner.Status(ctx, address)
		return innerErr
	}, retry.Attempts(retryAttempts), retry.Delay(retryDelay), retry.Context(ctx))
	return status, err
}

func (r *retrying) Ports(ctx context.Context, address string) ([]int, error) {
	var ports []int
	err := retry.Do(func() error {
		var innerErr error
		ports, innerErr = r.inner.Ports(ctx, address)
		return innerErr
	}, retry.Attempts(retryAttempts), retry.Delay(retryDelay), retry.Context(ctx))
	return ports, err
}
