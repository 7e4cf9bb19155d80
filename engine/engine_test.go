package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type countingEngine struct {
	once  Once
	calls atomic.Int32
	err   error
}

func (c *countingEngine) Init(context.Context) error {
	c.calls.Add(1)
	return c.once.Do(func() error { return c.err })
}

func TestEnsureReadyIsIdempotent(t *testing.T) {
	layout, raster := &countingEngine{}, &countingEngine{}
	rt := &Runtime{Layout: layout, Raster: raster}

	for i := 0; i < 3; i++ {
		if err := rt.EnsureReady(context.Background()); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if !layout.once.Ready() || !raster.once.Ready() {
		t.Fatalf("both engines must be ready")
	}
	if got := layout.calls.Load(); got != 3 {
		t.Fatalf("layout init attempts = %d, want 3", got)
	}
}

func TestEnsureReadyDoesNotShortCircuit(t *testing.T) {
	boom := errors.New("boom")
	layout := &countingEngine{}
	raster := &countingEngine{err: boom}
	rt := &Runtime{Layout: layout, Raster: raster}

	err := rt.EnsureReady(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected raster failure, got %v", err)
	}
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Engine != "raster" {
		t.Fatalf("expected InitError for raster, got %#v", err)
	}
	if !layout.once.Ready() {
		t.Fatalf("layout engine must still initialize when the rasterizer fails")
	}
	if raster.once.Ready() {
		t.Fatalf("failed engine must not be marked ready")
	}
}

func TestEnsureReadyJoinsBothFailures(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	rt := &Runtime{
		Layout: InitFunc(func(context.Context) error { return errA }),
		Raster: InitFunc(func(context.Context) error { return errB }),
	}
	err := rt.EnsureReady(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both failures, got %v", err)
	}
}

func TestAlreadyInitializedByMessage(t *testing.T) {
	foreign := errors.New("WebAssembly module Already Initialized")
	rt := &Runtime{
		Layout: InitFunc(func(context.Context) error { return foreign }),
		Raster: InitFunc(func(context.Context) error { return ErrAlreadyInitialized }),
	}
	if err := rt.EnsureReady(context.Background()); err != nil {
		t.Fatalf("already-initialized signals must be tolerated, got %v", err)
	}
}

func TestIsAlreadyInitialized(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrAlreadyInitialized, true},
		{&InitError{Engine: "x", Err: ErrAlreadyInitialized}, true},
		{errors.New("already initialized"), true},
		{errors.New("out of memory"), false},
	}
	for _, c := range cases {
		if got := IsAlreadyInitialized(c.err); got != c.want {
			t.Fatalf("IsAlreadyInitialized(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestConcurrentEnsureReady(t *testing.T) {
	layout, raster := &countingEngine{}, &countingEngine{}
	rt := &Runtime{Layout: layout, Raster: raster}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rt.EnsureReady(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent EnsureReady failed: %v", err)
		}
	}
}
