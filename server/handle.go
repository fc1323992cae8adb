package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sciforge/toolbridge/protocol"
)

// HandleMessage dispatches one inbound envelope and returns the serialized
// response, or nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, data []byte) []byte {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		return s.marshalResponse(protocol.NewErrorResponse(nil,
			protocol.NewError(protocol.KindValidation, "%s", err.Error())))
	}

	if req.Auth != "" {
		authed, authErr := s.Authenticate(ctx, req.Auth)
		if authErr != nil {
			if req.IsNotification() {
				s.logger.Debug("dropping notification with bad credentials",
					"method", req.Method, "error", authErr)
				return nil
			}
			return s.marshalResponse(protocol.NewErrorResponse(req.ID, authErr))
		}
		ctx = authed
	}

	if req.IsNotification() {
		s.handleNotification(req)
		return nil
	}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		s.logger.Debug("request failed", "method", req.Method, "id", req.ID, "error", err)
		return s.marshalResponse(protocol.NewErrorResponse(req.ID, err))
	}

	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		return s.marshalResponse(protocol.NewErrorResponse(req.ID,
			protocol.NewError(protocol.KindInternal, "%s", err.Error())))
	}
	return s.marshalResponse(resp)
}

func (s *Server) dispatch(ctx context.Context, req *protocol.Request) (interface{}, error) {
	switch req.Method {
	case protocol.MethodListTools:
		var params protocol.ListToolsParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		return s.ListTools(ctx, params)

	case protocol.MethodCallTool:
		var params protocol.CallToolParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.Name == "" {
			return nil, protocol.NewError(protocol.KindValidation, "tools/call requires a tool name")
		}
		return s.CallTool(ctx, params, requestIDString(req.ID))

	case protocol.MethodFindTools:
		var params protocol.FindToolsParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.Query == "" {
			return nil, protocol.NewError(protocol.KindValidation, "tools/find requires a query")
		}
		return s.FindTools(ctx, params)

	case protocol.MethodGetArtifact:
		var params protocol.GetArtifactParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, err
		}
		if params.ID == "" {
			return nil, protocol.NewError(protocol.KindValidation, "artifact/get requires an id")
		}
		return s.GetArtifact(ctx, params)

	default:
		return nil, protocol.NewError(protocol.KindNotFound, "unknown method: %s", req.Method)
	}
}

func (s *Server) handleNotification(req *protocol.Request) {
	switch req.Method {
	case protocol.MethodCancelled:
		var params protocol.CancelledParams
		if err := unmarshalParams(req.Params, &params); err != nil || params.RequestID == "" {
			s.logger.Debug("ignoring malformed cancellation", "error", err)
			return
		}
		s.Cancel(params.RequestID, params.Reason)
	default:
		s.logger.Debug("ignoring unknown notification", "method", req.Method)
	}
}

// Run drives the transport receive loop until the context ends or the
// transport fails. Each request is handled on its own goroutine so a slow
// tool call cannot stall the loop.
func (s *Server) Run(ctx context.Context) error {
	if s.transport == nil {
		return fmt.Errorf("server has no transport configured")
	}

	s.logger.Info("bridge server started", "tools", s.store.Len())
	for {
		data, err := s.transport.ReceiveWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("bridge server stopping")
				return nil
			}
			return fmt.Errorf("transport receive: %w", err)
		}

		go func(msg []byte) {
			if resp := s.HandleMessage(ctx, msg); resp != nil {
				if err := s.transport.Send(resp); err != nil {
					s.logger.Warn("failed to send response", "error", err)
				}
			}
		}(data)
	}
}

func (s *Server) marshalResponse(resp *protocol.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "id", resp.ID, "error", err)
		fallback := fmt.Sprintf(`{"id":null,"error":{"kind":%q,"message":"response serialization failed"}}`,
			protocol.KindInternal)
		return []byte(fallback)
	}
	return data
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.NewError(protocol.KindValidation, "invalid params: %s", err.Error())
	}
	return nil
}

// requestIDString renders the envelope ID for use as a call and stream key.
func requestIDString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
