package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sciforge/toolbridge/engine"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/schema"
)

func lookupContract(t *testing.T) *schema.Contract {
	t.Helper()
	c, err := schema.Compile(protocol.ToolDescriptor{
		Name: "lookup",
		Kind: "database-query",
		Parameters: &protocol.ParameterSchema{
			Type: "object",
			Properties: map[string]*protocol.ParameterSpec{
				"id": {Type: protocol.TypeString, Required: true},
			},
		},
	})
	require.NoError(t, err)
	return c
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()
	e := engine.New(engine.WithWorkers(2))
	defer e.Close()

	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		return engine.Structured(map[string]interface{}{"id": args["id"], "found": true}), nil
	}

	res, err := e.Execute(context.Background(), lookupContract(t), handler,
		map[string]interface{}{"id": "1TUP"}, engine.CallOptions{})
	require.NoError(t, err)
	require.Equal(t, "lookup", res.Tool)
	require.Equal(t, "database-query", res.Kind)
	require.NotEmpty(t, res.CallID)

	payload, err := res.Payload()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "1TUP", decoded["id"])
}

func TestExecute_ValidationShortCircuits(t *testing.T) {
	t.Parallel()
	e := engine.New()
	defer e.Close()

	var called atomic.Bool
	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		called.Store(true)
		return engine.Text("never"), nil
	}

	_, err := e.Execute(context.Background(), lookupContract(t), handler,
		map[string]interface{}{}, engine.CallOptions{})
	require.Error(t, err)
	require.Equal(t, protocol.KindValidation, protocol.KindOf(err))
	require.False(t, called.Load(), "invalid calls must not reach the pool")

	berr := protocol.AsBridgeError(err)
	data, ok := berr.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, []string{"id"}, data["missing"])
}

func TestExecute_HandlerErrorIsExecutionFailure(t *testing.T) {
	t.Parallel()
	e := engine.New()
	defer e.Close()

	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		return engine.Output{}, fmt.Errorf("upstream returned 500")
	}

	_, err := e.Execute(context.Background(), lookupContract(t), handler,
		map[string]interface{}{"id": "x"}, engine.CallOptions{})
	require.Error(t, err)
	require.Equal(t, protocol.KindExecution, protocol.KindOf(err))
	require.Contains(t, err.Error(), "lookup")
	require.Contains(t, err.Error(), "database-query")
	require.Contains(t, err.Error(), "upstream returned 500")
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()
	e := engine.New()
	defer e.Close()

	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		select {
		case <-time.After(5 * time.Second):
			return engine.Text("too late"), nil
		case <-ctx.Done():
			return engine.Output{}, ctx.Err()
		}
	}

	start := time.Now()
	_, err := e.Execute(context.Background(), lookupContract(t), handler,
		map[string]interface{}{"id": "x"}, engine.CallOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	require.Equal(t, protocol.KindTimeout, protocol.KindOf(err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestExecute_CallerCancellation(t *testing.T) {
	t.Parallel()
	e := engine.New()
	defer e.Close()

	started := make(chan struct{})
	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		close(started)
		<-ctx.Done()
		return engine.Output{}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := e.Execute(ctx, lookupContract(t), handler,
		map[string]interface{}{"id": "x"}, engine.CallOptions{})
	require.Error(t, err)
	require.Equal(t, protocol.KindCancelled, protocol.KindOf(err))
}

func TestExecute_StreamingPreservesOrder(t *testing.T) {
	t.Parallel()
	e := engine.New()
	defer e.Close()

	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		for i := 0; i < 10; i++ {
			emit(fmt.Sprintf("chunk-%d", i))
		}
		return engine.Text("done"), nil
	}

	var mu sync.Mutex
	var got []string
	sink := func(fragment string) {
		mu.Lock()
		got = append(got, fragment)
		mu.Unlock()
	}

	_, err := e.Execute(context.Background(), lookupContract(t), handler,
		map[string]interface{}{"id": "x"}, engine.CallOptions{Sink: sink})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 10)
	for i, fragment := range got {
		require.Equal(t, fmt.Sprintf("chunk-%d", i), fragment)
	}
}

func TestExecute_SingleWorkerSerializes(t *testing.T) {
	t.Parallel()
	e := engine.New(engine.WithWorkers(1), engine.WithQueueSize(10))
	defer e.Close()

	var concurrent, peak int32
	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return engine.Text("ok"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), lookupContract(t), handler,
				map[string]interface{}{"id": "x"}, engine.CallOptions{})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestExecute_CallIDHonored(t *testing.T) {
	t.Parallel()
	e := engine.New()
	defer e.Close()

	handler := func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
		return engine.Text("ok"), nil
	}

	res, err := e.Execute(context.Background(), lookupContract(t), handler,
		map[string]interface{}{"id": "x"}, engine.CallOptions{CallID: "req-42"})
	require.NoError(t, err)
	require.Equal(t, "req-42", res.CallID)
}
