// Package server is the protocol front-end of the bridge. It owns the tool
// handler table, dispatches inbound envelopes to the store, engine, finder
// and artifact store, and pushes notifications back over the transport.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sciforge/toolbridge/annotations"
	"github.com/sciforge/toolbridge/auth"
	"github.com/sciforge/toolbridge/discovery"
	"github.com/sciforge/toolbridge/engine"
	"github.com/sciforge/toolbridge/hook"
	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/registry"
	"github.com/sciforge/toolbridge/schema"
	"github.com/sciforge/toolbridge/types"
)

// Tool pairs a descriptor with the handler that implements it.
type Tool struct {
	Descriptor protocol.ToolDescriptor
	Handler    engine.Handler
}

// Server wires the bridge components behind the protocol operations.
type Server struct {
	store     *registry.Store
	resolver  *annotations.Resolver
	engine    *engine.Engine
	pipeline  *hook.Pipeline
	finder    *discovery.Finder
	artifacts *hook.ArtifactStore

	validator  auth.TokenValidator
	permission auth.PermissionChecker

	publish   *protocol.ListFilter
	logger    types.Logger
	transport types.Transport
	canceller *RequestCanceller

	mu        sync.RWMutex
	handlers  map[string]engine.Handler
	contracts map[string]*schema.Contract
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTransport attaches the transport used for responses, streamed
// fragments and list-changed notifications.
func WithTransport(t types.Transport) ServerOption {
	return func(s *Server) { s.transport = t }
}

// WithPipeline attaches the output post-processing pipeline.
func WithPipeline(p *hook.Pipeline) ServerOption {
	return func(s *Server) { s.pipeline = p }
}

// WithFinder attaches the discovery finder backing 'tools/find'.
func WithFinder(f *discovery.Finder) ServerOption {
	return func(s *Server) { s.finder = f }
}

// WithArtifactStore attaches the store backing 'artifact/get'.
func WithArtifactStore(store *hook.ArtifactStore) ServerOption {
	return func(s *Server) { s.artifacts = store }
}

// WithAuth enables the authentication boundary. Calls without a validated
// principal in their context are rejected once a validator is set.
func WithAuth(v auth.TokenValidator, p auth.PermissionChecker) ServerOption {
	return func(s *Server) {
		s.validator = v
		if p != nil {
			s.permission = p
		}
	}
}

// WithPublishFilter restricts which registered tools the protocol surface
// exposes. Unpublished tools stay callable by hooks but are invisible to
// list, call and find.
func WithPublishFilter(f *protocol.ListFilter) ServerOption {
	return func(s *Server) { s.publish = f }
}

// NewServer creates a Server over the given store, resolver and engine.
func NewServer(store *registry.Store, resolver *annotations.Resolver, eng *engine.Engine, opts ...ServerOption) *Server {
	s := &Server{
		store:      store,
		resolver:   resolver,
		engine:     eng,
		logger:     logx.Nop(),
		canceller:  NewRequestCanceller(),
		permission: auth.AllowAll{},
		handlers:   make(map[string]engine.Handler),
		contracts:  make(map[string]*schema.Contract),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Keep derived state coherent with the store and let clients know the
	// catalog moved.
	store.OnChange(func(name string) {
		s.mu.Lock()
		delete(s.contracts, name)
		s.mu.Unlock()
		s.resolver.Invalidate(name)
		s.notifyListChanged()
	})
	return s
}

// AttachPipeline wires the post-processing pipeline after construction. The
// pipeline's nested-call invoker is usually the server itself, so it cannot
// exist before the server does.
func (s *Server) AttachPipeline(p *hook.Pipeline) {
	s.pipeline = p
}

// AttachFinder wires the discovery finder after construction, once the
// embedding index has been built over the loaded catalog.
func (s *Server) AttachFinder(f *discovery.Finder) {
	s.finder = f
}

// RegisterTool compiles the descriptor and publishes it together with its
// handler. A descriptor that fails compilation is rejected and the store is
// left untouched.
func (s *Server) RegisterTool(d protocol.ToolDescriptor, handler engine.Handler) error {
	if handler == nil {
		return protocol.NewError(protocol.KindValidation, "tool %q has no handler", d.Name)
	}
	contract, err := schema.Compile(d)
	if err != nil {
		return protocol.NewError(protocol.KindCompile, "tool %q: %s", d.Name, err.Error())
	}

	s.mu.Lock()
	s.handlers[d.Name] = handler
	s.mu.Unlock()

	if err := s.store.Register(d); err != nil {
		s.mu.Lock()
		delete(s.handlers, d.Name)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.contracts[d.Name] = contract
	s.mu.Unlock()
	return nil
}

// ReplaceTool is RegisterTool with last-writer-wins semantics.
func (s *Server) ReplaceTool(d protocol.ToolDescriptor, handler engine.Handler) error {
	if handler == nil {
		return protocol.NewError(protocol.KindValidation, "tool %q has no handler", d.Name)
	}
	contract, err := schema.Compile(d)
	if err != nil {
		return protocol.NewError(protocol.KindCompile, "tool %q: %s", d.Name, err.Error())
	}

	s.mu.Lock()
	s.handlers[d.Name] = handler
	s.mu.Unlock()

	if err := s.store.Replace(d); err != nil {
		return err
	}

	s.mu.Lock()
	s.contracts[d.Name] = contract
	s.mu.Unlock()
	return nil
}

// Load registers a batch of tools. A tool that fails to compile or register
// is skipped and logged; the rest of the batch still loads. The joined
// failures come back as the error.
func (s *Server) Load(tools []Tool) error {
	var errs []error
	for _, t := range tools {
		if err := s.RegisterTool(t.Descriptor, t.Handler); err != nil {
			s.logger.Warn("skipping tool", "name", t.Descriptor.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnregisterTool removes a tool and its handler.
func (s *Server) UnregisterTool(name string) bool {
	s.mu.Lock()
	delete(s.handlers, name)
	s.mu.Unlock()
	return s.store.Unregister(name)
}

// contract returns the cached compiled contract for a published tool,
// recompiling after a cache invalidation.
func (s *Server) contract(name string) (*schema.Contract, error) {
	s.mu.RLock()
	c, ok := s.contracts[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	d, found := s.store.Get(name)
	if !found {
		return nil, protocol.NewError(protocol.KindNotFound, "tool not found: %s", name)
	}
	c, err := schema.Compile(d)
	if err != nil {
		return nil, protocol.NewError(protocol.KindCompile, "tool %q: %s", name, err.Error())
	}

	s.mu.Lock()
	s.contracts[name] = c
	s.mu.Unlock()
	return c, nil
}

func (s *Server) handler(name string) (engine.Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

// published reports whether the tool is visible through the protocol surface.
func (s *Server) published(d protocol.ToolDescriptor) bool {
	return registry.Matches(s.publish, d)
}

// ListTools returns the published descriptors passing the request filter.
func (s *Server) ListTools(ctx context.Context, params protocol.ListToolsParams) (*protocol.ListToolsResult, error) {
	descriptors := s.store.List(s.publish)
	result := &protocol.ListToolsResult{Tools: make([]protocol.ToolSummary, 0, len(descriptors))}
	for _, d := range descriptors {
		if !registry.Matches(params.Filter, d) {
			continue
		}
		result.Tools = append(result.Tools, protocol.ToolSummary{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.Parameters,
			Annotations: s.resolver.Resolve(d),
		})
	}
	return result, nil
}

// CallTool validates, authorizes and executes one tool call. Failures inside
// the tool come back in-band as an error result; protocol-level failures
// (unknown tool, invalid arguments, authorization) are returned as errors.
func (s *Server) CallTool(ctx context.Context, params protocol.CallToolParams, requestID string) (*protocol.CallToolResult, error) {
	d, found := s.store.Get(params.Name)
	if !found || !s.published(d) {
		return nil, protocol.NewError(protocol.KindNotFound, "tool not found: %s", params.Name)
	}

	if err := s.authorize(ctx, d); err != nil {
		return nil, err
	}

	handler, ok := s.handler(params.Name)
	if !ok {
		return nil, protocol.NewError(protocol.KindInternal, "tool %q has no handler", params.Name)
	}
	contract, err := s.contract(params.Name)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if requestID != "" {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithCancel(ctx)
		defer cancel()

		cancelCh := s.canceller.Register(requestID)
		defer s.canceller.Deregister(requestID)
		go func() {
			select {
			case <-cancelCh:
				cancel()
			case <-callCtx.Done():
			}
		}()
	}

	opts := engine.CallOptions{CallID: requestID}
	if params.Stream && s.transport != nil && requestID != "" {
		opts.Sink = func(fragment string) {
			s.sendNotification(protocol.MethodFragment, protocol.FragmentParams{
				RequestID: requestID,
				Fragment:  fragment,
			})
		}
	}

	res, err := s.engine.Execute(callCtx, contract, handler, params.Arguments, opts)
	if err != nil {
		berr := protocol.AsBridgeError(err)
		switch berr.Kind {
		case protocol.KindExecution, protocol.KindTimeout, protocol.KindCancelled:
			return &protocol.CallToolResult{IsError: true, Error: berr}, nil
		}
		return nil, berr
	}

	if s.pipeline != nil {
		res = s.pipeline.Apply(callCtx, res, hook.CallInfo{Tool: params.Name, Args: params.Arguments})
	}

	content, err := res.Payload()
	if err != nil {
		return nil, protocol.NewError(protocol.KindInternal, "serializing result for %q: %s", params.Name, err.Error())
	}
	return &protocol.CallToolResult{Content: content}, nil
}

// FindTools answers a natural-language discovery query over the published tools.
func (s *Server) FindTools(ctx context.Context, params protocol.FindToolsParams) (*protocol.FindToolsResult, error) {
	if s.finder == nil {
		return nil, protocol.NewError(protocol.KindInternal, "discovery is not configured")
	}

	res, err := s.finder.Find(ctx, params.Query, params.Categories, params.Limit, discovery.Method(params.Method))
	if err != nil {
		return nil, err
	}

	result := &protocol.FindToolsResult{
		Tools: make([]protocol.FoundTool, 0, len(res.Matches)),
		Meta: protocol.FindMeta{
			Method:       string(res.Method),
			TotalMatches: res.TotalMatches,
		},
	}
	for _, m := range res.Matches {
		if d, ok := s.store.Get(m.Name); !ok || !s.published(d) {
			continue
		}
		result.Tools = append(result.Tools, protocol.FoundTool{
			Name:        m.Name,
			Description: m.Description,
			Score:       m.Score,
			Method:      string(m.Method),
		})
	}
	return result, nil
}

// GetArtifact fetches a persisted tool output by ID.
func (s *Server) GetArtifact(ctx context.Context, params protocol.GetArtifactParams) (*protocol.GetArtifactResult, error) {
	if s.artifacts == nil {
		return nil, protocol.NewError(protocol.KindNotFound, "artifact storage is not configured")
	}
	a, err := s.artifacts.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	return &protocol.GetArtifactResult{
		ID:        a.ID,
		Tool:      a.Tool,
		Content:   a.Content,
		CreatedAt: a.CreatedAt,
		ExpiresAt: a.ExpiresAt,
	}, nil
}

// Cancel aborts an in-flight call by request ID.
func (s *Server) Cancel(requestID, reason string) bool {
	cancelled := s.canceller.Cancel(requestID)
	if cancelled {
		s.logger.Info("request cancelled", "requestId", requestID, "reason", reason)
	} else {
		s.logger.Debug("cancellation requested for unknown request", "requestId", requestID)
	}
	return cancelled
}

// Invoke implements hook.ToolInvoker: nested calls route through the same
// engine and registry but bypass the pipeline, so a rule cannot re-trigger
// itself through its own tool call.
func (s *Server) Invoke(ctx context.Context, tool string, args map[string]interface{}) (engine.Output, error) {
	if _, found := s.store.Get(tool); !found {
		return engine.Output{}, protocol.NewError(protocol.KindNotFound, "tool not found: %s", tool)
	}
	handler, ok := s.handler(tool)
	if !ok {
		return engine.Output{}, protocol.NewError(protocol.KindInternal, "tool %q has no handler", tool)
	}
	contract, err := s.contract(tool)
	if err != nil {
		return engine.Output{}, err
	}

	res, err := s.engine.Execute(ctx, contract, handler, args, engine.CallOptions{})
	if err != nil {
		return engine.Output{}, err
	}
	return res.Output, nil
}

var _ hook.ToolInvoker = (*Server)(nil)

// Authenticate validates a bearer token and returns a context carrying the
// principal. HandleMessage calls this for envelopes that carry an auth
// field; embedding callers may also invoke it directly before CallTool.
func (s *Server) Authenticate(ctx context.Context, token string) (context.Context, error) {
	if s.validator == nil {
		return ctx, nil
	}
	principal, err := s.validator.ValidateToken(ctx, token)
	if err != nil {
		return ctx, err
	}
	return auth.ContextWithPrincipal(ctx, principal), nil
}

// authorize applies the permission checker when auth is enabled.
func (s *Server) authorize(ctx context.Context, d protocol.ToolDescriptor) error {
	if s.validator == nil {
		return nil
	}
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return protocol.NewError(protocol.KindUnauthorized, "call to %q requires authentication", d.Name)
	}
	a := s.resolver.Resolve(d)
	return s.permission.CheckPermission(ctx, principal, auth.CallPermission{
		Tool:        d.Name,
		ReadOnly:    a.ReadOnly,
		Destructive: a.Destructive,
	})
}

// notifyListChanged tells connected clients the published catalog moved.
func (s *Server) notifyListChanged() {
	s.sendNotification(protocol.MethodNotifyToolsListChanged, nil)
}

func (s *Server) sendNotification(method string, params interface{}) {
	if s.transport == nil {
		return
	}
	data, err := marshalNotification(method, params)
	if err != nil {
		s.logger.Warn("failed to marshal notification", "method", method, "error", err)
		return
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Warn("failed to send notification", "method", method, "error", err)
	}
}

func marshalNotification(method string, params interface{}) ([]byte, error) {
	n := protocol.Notification{Method: method, Params: params}
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s notification: %w", method, err)
	}
	return data, nil
}
