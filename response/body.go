package response

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrBodyClosed is returned by Read after the body has been closed.
var ErrBodyClosed = errors.New("response: body closed")

type renderFunc func(ctx context.Context) ([]byte, error)

// futureBody resolves the whole render on the first Read.
type futureBody struct {
	ctx    context.Context
	cancel context.CancelFunc
	run    renderFunc

	closed atomic.Bool
	mu     sync.Mutex
	done   bool
	r      *bytes.Reader
	err    error
}

func newFutureBody(ctx context.Context, run renderFunc) *futureBody {
	ctx, cancel := context.WithCancel(ctx)
	return &futureBody{ctx: ctx, cancel: cancel, run: run}
}

func (b *futureBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrBodyClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.done {
		data, err := b.run(b.ctx)
		b.done = true
		b.cancel()
		if err != nil {
			b.err = err
		} else {
			b.r = bytes.NewReader(data)
		}
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.r.Read(p)
}

// Close cancels a render in progress without waiting for it.
func (b *futureBody) Close() error {
	b.closed.Store(true)
	b.cancel()
	return nil
}

// streamBody is a single-shot pull stream: the first Read starts the render,
// whose result is written to the pipe as one chunk before it is closed.
type streamBody struct {
	ctx    context.Context
	cancel context.CancelFunc
	run    renderFunc

	closed atomic.Bool
	start  sync.Once
	pr     *io.PipeReader
	pw     *io.PipeWriter
}

func newStreamBody(ctx context.Context, run renderFunc) *streamBody {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	return &streamBody{ctx: ctx, cancel: cancel, run: run, pr: pr, pw: pw}
}

func (b *streamBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrBodyClosed
	}
	b.start.Do(func() { go b.produce() })
	return b.pr.Read(p)
}

func (b *streamBody) produce() {
	defer b.cancel()
	data, err := b.run(b.ctx)
	if err != nil {
		b.pw.CloseWithError(err)
		return
	}
	if _, err := b.pw.Write(data); err != nil {
		b.pw.CloseWithError(err)
		return
	}
	b.pw.Close()
}

// Close cancels the render and prevents a later Read from starting one.
func (b *streamBody) Close() error {
	b.closed.Store(true)
	b.cancel()
	b.start.Do(func() {})
	return b.pr.CloseWithError(ErrBodyClosed)
}
