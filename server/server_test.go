package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sciforge/toolbridge/annotations"
	"github.com/sciforge/toolbridge/auth"
	"github.com/sciforge/toolbridge/engine"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/registry"
	"github.com/sciforge/toolbridge/server"
)

// mockTransport captures everything the server sends.
type mockTransport struct {
	mu   sync.Mutex
	sent [][]byte
	in   chan []byte
}

func newMockTransport() *mockTransport {
	return &mockTransport{in: make(chan []byte, 16)}
}

func (m *mockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.sent = append(m.sent, cp)
	return nil
}

func (m *mockTransport) Receive() ([]byte, error) {
	return m.ReceiveWithContext(context.Background())
}

func (m *mockTransport) ReceiveWithContext(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-m.in:
		return data, nil
	}
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) sentMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

func echoDescriptor(name, category string) protocol.ToolDescriptor {
	return protocol.ToolDescriptor{
		Name:        name,
		Description: "echoes its input",
		Category:    category,
		Kind:        "local",
		Parameters: &protocol.ParameterSchema{
			Type: "object",
			Properties: map[string]*protocol.ParameterSpec{
				"message": {Type: protocol.TypeString, Required: true},
			},
		},
	}
}

func echoHandler(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
	return engine.Structured(map[string]interface{}{"echo": args["message"]}), nil
}

func newTestServer(t *testing.T, opts ...server.ServerOption) (*server.Server, *mockTransport) {
	t.Helper()
	transport := newMockTransport()
	eng := engine.New(engine.WithWorkers(2))
	t.Cleanup(eng.Close)

	opts = append([]server.ServerOption{server.WithTransport(transport)}, opts...)
	srv := server.NewServer(registry.New(), annotations.NewResolver(annotations.Tables{}), eng, opts...)
	return srv, transport
}

func TestServer_RegisterAndList(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", "utility"), echoHandler))

	res, err := srv.ListTools(context.Background(), protocol.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Equal(t, "echo", res.Tools[0].Name)
	require.True(t, res.Tools[0].Annotations.ReadOnly)
	require.NotNil(t, res.Tools[0].InputSchema)
}

func TestServer_RegisterRejectsBadSchema(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	bad := protocol.ToolDescriptor{
		Name: "broken",
		Parameters: &protocol.ParameterSchema{
			Type: "object",
			Properties: map[string]*protocol.ParameterSpec{
				"x": {Type: "quaternion", Required: true},
			},
		},
	}
	err := srv.RegisterTool(bad, echoHandler)
	require.Error(t, err)
	require.Equal(t, protocol.KindCompile, protocol.KindOf(err))

	res, err := srv.ListTools(context.Background(), protocol.ListToolsParams{})
	require.NoError(t, err)
	require.Empty(t, res.Tools)
}

func TestServer_LoadIsolatesFailures(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	err := srv.Load([]server.Tool{
		{Descriptor: echoDescriptor("good", ""), Handler: echoHandler},
		{Descriptor: protocol.ToolDescriptor{
			Name: "bad",
			Parameters: &protocol.ParameterSchema{
				Type:       "object",
				Properties: map[string]*protocol.ParameterSpec{"x": {Type: "nope", Required: true}},
			},
		}, Handler: echoHandler},
		{Descriptor: echoDescriptor("also_good", ""), Handler: echoHandler},
	})
	require.Error(t, err, "the batch error reports the bad tool")

	res, lerr := srv.ListTools(context.Background(), protocol.ListToolsParams{})
	require.NoError(t, lerr)
	require.Len(t, res.Tools, 2, "good tools still load")
}

func TestServer_CallTool(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	res, err := srv.CallTool(context.Background(), protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "hi"},
	}, "req-1")
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.JSONEq(t, `{"echo":"hi"}`, string(res.Content))
}

func TestServer_CallToolNotFound(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	_, err := srv.CallTool(context.Background(), protocol.CallToolParams{Name: "ghost"}, "")
	require.Error(t, err)
	require.Equal(t, protocol.KindNotFound, protocol.KindOf(err))
}

func TestServer_CallToolValidationError(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	_, err := srv.CallTool(context.Background(), protocol.CallToolParams{Name: "echo"}, "")
	require.Error(t, err)
	require.Equal(t, protocol.KindValidation, protocol.KindOf(err))
}

func TestServer_CallToolExecutionFailureIsInBand(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	failing := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		return engine.Output{}, fmt.Errorf("upstream 503")
	}
	require.NoError(t, srv.RegisterTool(echoDescriptor("flaky", ""), failing))

	res, err := srv.CallTool(context.Background(), protocol.CallToolParams{
		Name:      "flaky",
		Arguments: map[string]interface{}{"message": "x"},
	}, "")
	require.NoError(t, err, "tool failures come back in-band")
	require.True(t, res.IsError)
	require.NotNil(t, res.Error)
	require.Equal(t, protocol.KindExecution, res.Error.Kind)
	require.Contains(t, res.Error.Message, "upstream 503")
}

func TestServer_PublishFilterHidesTools(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, server.WithPublishFilter(&protocol.ListFilter{
		ExcludeNames: []string{"internal_probe"},
	}))
	require.NoError(t, srv.RegisterTool(echoDescriptor("public_echo", ""), echoHandler))
	require.NoError(t, srv.RegisterTool(echoDescriptor("internal_probe", ""), echoHandler))

	res, err := srv.ListTools(context.Background(), protocol.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Equal(t, "public_echo", res.Tools[0].Name)

	// Unpublished tools are not callable over the protocol surface.
	_, err = srv.CallTool(context.Background(), protocol.CallToolParams{
		Name:      "internal_probe",
		Arguments: map[string]interface{}{"message": "x"},
	}, "")
	require.Equal(t, protocol.KindNotFound, protocol.KindOf(err))

	// But hooks can still invoke them.
	out, err := srv.Invoke(context.Background(), "internal_probe", map[string]interface{}{"message": "x"})
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":"x"}`, out.Text())
}

func TestServer_HandleMessageRoundTrip(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	req := []byte(`{"id":"1","method":"tools/call","params":{"name":"echo","arguments":{"message":"hello"}}}`)
	respBytes := srv.HandleMessage(context.Background(), req)
	require.NotNil(t, respBytes)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.Nil(t, resp.Error)
	require.Equal(t, "1", resp.ID)

	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.JSONEq(t, `{"echo":"hello"}`, string(result.Content))
}

func TestServer_HandleMessageUnknownMethod(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	respBytes := srv.HandleMessage(context.Background(), []byte(`{"id":7,"method":"tools/levitate"}`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.KindNotFound, resp.Error.Kind)
}

func TestServer_HandleMessageMalformed(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	respBytes := srv.HandleMessage(context.Background(), []byte(`{"not json`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.KindValidation, resp.Error.Kind)
}

func TestServer_CancellationNotification(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	started := make(chan struct{})
	blocking := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		close(started)
		<-ctx.Done()
		return engine.Output{}, ctx.Err()
	}
	require.NoError(t, srv.RegisterTool(echoDescriptor("slow", ""), blocking))

	done := make(chan *protocol.CallToolResult, 1)
	go func() {
		res, _ := srv.CallTool(context.Background(), protocol.CallToolParams{
			Name:      "slow",
			Arguments: map[string]interface{}{"message": "x"},
		}, "req-9")
		done <- res
	}()

	<-started
	// The cancel notification produces no response.
	resp := srv.HandleMessage(context.Background(),
		[]byte(`{"method":"$/cancelled","params":{"requestId":"req-9","reason":"user abort"}}`))
	require.Nil(t, resp)

	select {
	case res := <-done:
		require.True(t, res.IsError)
		require.Equal(t, protocol.KindCancelled, res.Error.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not unwind after cancellation")
	}
}

func TestServer_StreamingFragments(t *testing.T) {
	t.Parallel()
	srv, transport := newTestServer(t)

	streaming := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		emit("part-1")
		emit("part-2")
		return engine.Text("done"), nil
	}
	require.NoError(t, srv.RegisterTool(echoDescriptor("streamer", ""), streaming))

	_, err := srv.CallTool(context.Background(), protocol.CallToolParams{
		Name:      "streamer",
		Arguments: map[string]interface{}{"message": "x"},
		Stream:    true,
	}, "req-5")
	require.NoError(t, err)

	var fragments []string
	for _, raw := range transport.sentMessages() {
		var n struct {
			Method string                  `json:"method"`
			Params protocol.FragmentParams `json:"params"`
		}
		require.NoError(t, json.Unmarshal(raw, &n))
		if n.Method == protocol.MethodFragment {
			require.Equal(t, "req-5", n.Params.RequestID)
			fragments = append(fragments, n.Params.Fragment)
		}
	}
	require.Equal(t, []string{"part-1", "part-2"}, fragments)
}

func TestServer_ListChangedNotification(t *testing.T) {
	t.Parallel()
	srv, transport := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	found := false
	for _, raw := range transport.sentMessages() {
		if strings.Contains(string(raw), protocol.MethodNotifyToolsListChanged) {
			found = true
		}
	}
	require.True(t, found, "registration must announce the catalog change")
}

func TestServer_ReplaceToolLastWriterWins(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	shout := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		s, _ := args["message"].(string)
		return engine.Structured(map[string]interface{}{"echo": strings.ToUpper(s)}), nil
	}
	require.NoError(t, srv.ReplaceTool(echoDescriptor("echo", ""), shout))

	res, err := srv.CallTool(context.Background(), protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "hi"},
	}, "")
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":"HI"}`, string(res.Content))
}

func TestServer_FindTools(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", "utility"), echoHandler))

	// No finder attached yet.
	_, err := srv.FindTools(context.Background(), protocol.FindToolsParams{Query: "echo"})
	require.Error(t, err)
}

// staticPrincipal is a minimal authenticated identity for server tests.
type staticPrincipal struct{ subject string }

func (p staticPrincipal) GetClaims() map[string]interface{} {
	return map[string]interface{}{"sub": p.subject}
}

func (p staticPrincipal) GetSubject() string { return p.subject }

// staticValidator accepts exactly one bearer token.
type staticValidator struct{ token string }

func (v staticValidator) ValidateToken(ctx context.Context, token string) (auth.Principal, error) {
	if token != v.token {
		return nil, protocol.NewError(protocol.KindUnauthorized, "unknown token")
	}
	return staticPrincipal{subject: "agent-7"}, nil
}

// denyAll refuses every call regardless of principal.
type denyAll struct{}

func (denyAll) CheckPermission(ctx context.Context, principal auth.Principal, perm auth.CallPermission) error {
	return protocol.NewError(protocol.KindUnauthorized, "tool %q is off limits", perm.Tool)
}

func TestServer_CallRequiresToken(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, server.WithAuth(staticValidator{token: "sesame"}, auth.AllowAll{}))
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	// No auth field on the envelope: the call never reaches the engine.
	respBytes := srv.HandleMessage(context.Background(),
		[]byte(`{"id":"1","method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.KindUnauthorized, resp.Error.Kind)
}

func TestServer_CallRejectsBadToken(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, server.WithAuth(staticValidator{token: "sesame"}, auth.AllowAll{}))
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	respBytes := srv.HandleMessage(context.Background(),
		[]byte(`{"id":"1","method":"tools/call","auth":"wrong","params":{"name":"echo","arguments":{"message":"hi"}}}`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.KindUnauthorized, resp.Error.Kind)
}

func TestServer_CallWithTokenSucceeds(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, server.WithAuth(staticValidator{token: "sesame"}, auth.AllowAll{}))
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	respBytes := srv.HandleMessage(context.Background(),
		[]byte(`{"id":"1","method":"tools/call","auth":"sesame","params":{"name":"echo","arguments":{"message":"hi"}}}`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.Nil(t, resp.Error)

	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.JSONEq(t, `{"echo":"hi"}`, string(result.Content))
}

func TestServer_PermissionCheckerDeniesCall(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, server.WithAuth(staticValidator{token: "sesame"}, denyAll{}))
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	respBytes := srv.HandleMessage(context.Background(),
		[]byte(`{"id":"1","method":"tools/call","auth":"sesame","params":{"name":"echo","arguments":{"message":"hi"}}}`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.KindUnauthorized, resp.Error.Kind)
	require.Contains(t, resp.Error.Message, "off limits")
}

func TestServer_ListWorksWithoutToken(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, server.WithAuth(staticValidator{token: "sesame"}, auth.AllowAll{}))
	require.NoError(t, srv.RegisterTool(echoDescriptor("echo", ""), echoHandler))

	respBytes := srv.HandleMessage(context.Background(), []byte(`{"id":"1","method":"tools/list"}`))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.Nil(t, resp.Error)

	var result protocol.ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 1)
}
