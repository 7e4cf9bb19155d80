// Package engine brings up the process-wide computation engines used by the
// render pipeline: the layout engine and the rasterizer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyInitialized is returned by an engine whose one-time startup has
// already completed. Runtime treats it as success.
var ErrAlreadyInitialized = errors.New("engine: already initialized")

// Initializer is a heavy engine that must be started once per process.
type Initializer interface {
	Init(ctx context.Context) error
}

// InitFunc adapts a function to the Initializer interface.
type InitFunc func(ctx context.Context) error

// Init calls f(ctx).
func (f InitFunc) Init(ctx context.Context) error { return f(ctx) }

// InitError reports a failed engine startup other than the
// already-initialized signal.
type InitError struct {
	Engine string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("engine: init %s: %v", e.Engine, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Runtime owns the two engines the pipeline depends on.
type Runtime struct {
	Layout Initializer
	Raster Initializer
}

// EnsureReady initializes the rasterizer and the layout engine concurrently
// and waits for both. A failure of one never cancels the other. Calling it
// again after a successful startup is a no-op because each engine answers
// with ErrAlreadyInitialized.
func (r *Runtime) EnsureReady(ctx context.Context) error {
	if r == nil {
		return nil
	}
	engines := []struct {
		name string
		init Initializer
	}{
		{name: "raster", init: r.Raster},
		{name: "layout", init: r.Layout},
	}

	errs := make([]error, len(engines))
	var wg sync.WaitGroup
	for i, e := range engines {
		if e.init == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := e.init.Init(ctx)
			switch {
			case err == nil:
				Logger().Info("engine ready", "engine", e.name, "duration", time.Since(start))
			case IsAlreadyInitialized(err):
				return
			default:
				errs[i] = &InitError{Engine: e.name, Err: err}
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// IsAlreadyInitialized reports whether err is the idempotent
// re-initialization signal. Engines that do not wrap ErrAlreadyInitialized
// are recognized by their message.
func IsAlreadyInitialized(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyInitialized) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already initialized")
}

// Once is the ready flag an engine keeps for itself. The first successful Do
// flips it; every later Do returns ErrAlreadyInitialized without running fn.
// A failed fn leaves the engine not ready so a later call may try again.
type Once struct {
	mu    sync.Mutex
	ready bool
}

// Do runs fn unless the engine is already ready.
func (o *Once) Do(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ready {
		return ErrAlreadyInitialized
	}
	if err := fn(); err != nil {
		return err
	}
	o.ready = true
	return nil
}

// Ready reports whether Do has completed successfully.
func (o *Once) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}
