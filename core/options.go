package core

import (
	"context"
	"time"
)

// RecoveryFunc turns a handler failure into a result. Returning an error
// fails the invocation with that error instead.
type RecoveryFunc func(ctx context.Context, err error) (*Result, error)

// CallOptions tunes a single invocation.
type CallOptions struct {
	Deduplicate bool
	// Timeout overrides the context's per-call timeout when positive.
	Timeout time.Duration
	OnError RecoveryFunc
}

// CallOption mutates CallOptions.
type CallOption func(o *CallOptions)

// WithDeduplicate coalesces identical calls within the chain.
func WithDeduplicate() CallOption {
	return func(o *CallOptions) { o.Deduplicate = true }
}

// WithTimeout bounds the caller's wait for this call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) { o.Timeout = d }
}

// WithOnError installs a recovery function for handler failures.
func WithOnError(fn RecoveryFunc) CallOption {
	return func(o *CallOptions) { o.OnError = fn }
}

// ApplyCallOptions folds opts into a CallOptions value.
func ApplyCallOptions(opts ...CallOption) CallOptions {
	o := CallOptions{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
