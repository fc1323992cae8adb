package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/schema"
	"github.com/sciforge/toolbridge/types"
)

// Default pool sizing. The pool is deliberately modest; tool implementations
// are thin HTTP clients and saturation applies backpressure upstream.
const (
	DefaultWorkers   = 5
	DefaultQueueSize = 10
	DefaultTimeout   = 60 * time.Second
)

// StreamSink receives partial output fragments in emission order while a
// call is running. The final structured result is still returned on completion.
type StreamSink func(fragment string)

// Handler executes one tool implementation. It is the external collaborator
// boundary: the engine validates and binds arguments before invoking it, and
// normalizes whatever Output it returns. Handlers must honor ctx cancellation
// as it becomes observable.
type Handler func(ctx context.Context, args map[string]interface{}, emit StreamSink) (Output, error)

// Result is the outcome of one successful execution.
type Result struct {
	CallID   string
	Tool     string
	Kind     string
	Output   Output
	Duration time.Duration
}

// Payload renders the result as a single well-formed JSON payload.
func (r *Result) Payload() (json.RawMessage, error) {
	return r.Output.Normalize()
}

// CallOptions carries per-call execution options.
type CallOptions struct {
	// CallID identifies the call in logs and stream fragments. Generated
	// when empty.
	CallID string
	// Timeout is the overall ceiling for this call. Zero uses the engine default.
	Timeout time.Duration
	// Sink, when set, receives streamed fragments as the tool produces them.
	Sink StreamSink
}

// Engine is a bounded worker pool for tool execution. Submission blocks the
// caller only when the pool is saturated and no queue slot is free.
type Engine struct {
	queue   chan *job
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  types.Logger
	timeout time.Duration
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	workers   int
	queueSize int
	timeout   time.Duration
	logger    types.Logger
}

// WithWorkers sets the number of pool workers.
func WithWorkers(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the bounded queue depth.
func WithQueueSize(n int) Option {
	return func(c *engineConfig) {
		if n >= 0 {
			c.queueSize = n
		}
	}
}

// WithDefaultTimeout sets the per-call ceiling used when CallOptions omits one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an Engine and starts its workers.
func New(opts ...Option) *Engine {
	cfg := engineConfig{
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		timeout:   DefaultTimeout,
		logger:    logx.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		queue:   make(chan *job, cfg.queueSize),
		closed:  make(chan struct{}),
		logger:  cfg.logger,
		timeout: cfg.timeout,
	}
	for i := 0; i < cfg.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Close stops the workers. Jobs still queued are abandoned; their callers
// observe cancellation through their own contexts.
func (e *Engine) Close() {
	e.once.Do(func() { close(e.closed) })
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.queue:
			j.run()
		case <-e.closed:
			return
		}
	}
}

type handlerResult struct {
	out Output
	err error
}

type job struct {
	ctx     context.Context
	handler Handler
	args    map[string]interface{}
	sink    StreamSink

	done chan struct{}
	out  Output
	err  error
}

// run executes the job's handler. Cancellation is best-effort downstream:
// if the ctx fires while the handler is still running, the worker releases
// its slot and the handler goroutine is left to wind down on its own.
func (j *job) run() {
	defer close(j.done)

	// Bail out fast if the caller gave up while the job sat in the queue.
	select {
	case <-j.ctx.Done():
		j.err = j.ctx.Err()
		return
	default:
	}

	resCh := make(chan handlerResult, 1)
	go func() {
		out, err := j.handler(j.ctx, j.args, j.emit)
		resCh <- handlerResult{out: out, err: err}
	}()

	select {
	case r := <-resCh:
		j.out, j.err = r.out, r.err
	case <-j.ctx.Done():
		j.err = j.ctx.Err()
	}
}

// emit forwards one fragment to the caller's sink, preserving arrival order.
// Fragments produced after abandonment are dropped.
func (j *job) emit(fragment string) {
	if j.sink == nil || j.ctx.Err() != nil {
		return
	}
	j.sink(fragment)
}

// Execute runs a compiled call. Validation failures are returned immediately
// without touching the worker pool; execution failures, timeouts and
// cancellations come back as structured bridge errors.
func (e *Engine) Execute(ctx context.Context, contract *schema.Contract, handler Handler, args map[string]interface{}, opts CallOptions) (*Result, error) {
	if contract == nil || handler == nil {
		return nil, protocol.NewError(protocol.KindInternal, "execute requires a contract and a handler")
	}

	bound, err := contract.Bind(args)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			return nil, protocol.NewError(protocol.KindValidation, "%s", verr.Error()).
				WithData(map[string]interface{}{"missing": verr.Missing, "mismatched": verr.Mismatched})
		}
		return nil, protocol.NewError(protocol.KindValidation, "%s", err.Error())
	}

	callID := opts.CallID
	if callID == "" {
		callID = uuid.NewString()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	j := &job{
		ctx:     callCtx,
		handler: handler,
		args:    bound,
		sink:    opts.Sink,
		done:    make(chan struct{}),
	}

	start := time.Now()
	select {
	case e.queue <- j:
	case <-callCtx.Done():
		return nil, e.abandoned(ctx, callCtx, contract.Tool, callID)
	case <-e.closed:
		return nil, protocol.NewError(protocol.KindInternal, "engine is shut down")
	}

	select {
	case <-j.done:
	case <-callCtx.Done():
		// Guaranteed upstream: stop waiting even if the tool keeps running.
		return nil, e.abandoned(ctx, callCtx, contract.Tool, callID)
	}

	if j.err != nil {
		if errors.Is(j.err, context.Canceled) || errors.Is(j.err, context.DeadlineExceeded) {
			return nil, e.abandoned(ctx, callCtx, contract.Tool, callID)
		}
		e.logger.Warn("tool execution failed", "tool", contract.Tool, "callId", callID, "error", j.err)
		return nil, protocol.NewError(protocol.KindExecution, "tool %q (%s) failed: %s",
			contract.Tool, contract.Kind, j.err.Error())
	}

	return &Result{
		CallID:   callID,
		Tool:     contract.Tool,
		Kind:     contract.Kind,
		Output:   j.out,
		Duration: time.Since(start),
	}, nil
}

// abandoned distinguishes a caller cancellation from a per-call timeout.
func (e *Engine) abandoned(ctx, callCtx context.Context, tool, callID string) *protocol.BridgeError {
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("tool call timed out", "tool", tool, "callId", callID)
		return protocol.NewError(protocol.KindTimeout, "tool %q timed out", tool)
	}
	e.logger.Debug("tool call cancelled", "tool", tool, "callId", callID)
	return protocol.NewError(protocol.KindCancelled, "tool %q cancelled", tool)
}
