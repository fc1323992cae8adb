// Package toolbridge exposes external capabilities (REST APIs, database
// queries, local computations) to AI agent clients through a uniform
// protocol surface.
//
// # Overview
//
// A bridge process owns a catalog of tool descriptors, compiles their
// declarative parameter schemas into validation contracts, and executes
// calls on a bounded worker pool. Successful results flow through a
// configurable post-processing pipeline (summarization, artifact
// persistence) before they return to the client. Agents that do not want
// the full catalog can discover tools with natural-language queries.
//
// # Organization
//
// The library is organized into the following main packages:
//
//   - github.com/sciforge/toolbridge/registry: the in-memory tool descriptor store
//   - github.com/sciforge/toolbridge/schema: schema compilation, validation and argument binding
//   - github.com/sciforge/toolbridge/engine: the bounded-concurrency execution engine
//   - github.com/sciforge/toolbridge/hook: the output post-processing pipeline and artifact store
//   - github.com/sciforge/toolbridge/discovery: tiered natural-language tool search
//   - github.com/sciforge/toolbridge/annotations: per-tool behavior hint resolution
//   - github.com/sciforge/toolbridge/server: the protocol front-end tying it together
//   - github.com/sciforge/toolbridge/transport/stdio: newline-delimited stdio transport
//
// # Basic Usage
//
//	store := registry.New()
//	resolver := annotations.NewResolver(annotations.Tables{})
//	eng := engine.New(engine.WithWorkers(5))
//	defer eng.Close()
//
//	srv := server.NewServer(store, resolver, eng)
//	err := srv.RegisterTool(protocol.ToolDescriptor{
//		Name:        "say_hello",
//		Description: "Greets the caller.",
//		Parameters: &protocol.ParameterSchema{
//			Type: "object",
//			Properties: map[string]*protocol.ParameterSpec{
//				"name": {Type: protocol.TypeString, Required: true},
//			},
//		},
//	}, func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
//		return engine.Text(fmt.Sprintf("hello, %s", args["name"])), nil
//	})
//
//	result, err := srv.CallTool(ctx, protocol.CallToolParams{
//		Name:      "say_hello",
//		Arguments: map[string]interface{}{"name": "World"},
//	}, "")
//
// The cmd/toolbridge command wires these pieces from a YAML configuration
// file and serves them over stdio.
package toolbridge
