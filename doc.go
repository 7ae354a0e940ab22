// Package relay is a conversational agent runtime for Go.
//
// It executes one turn at a time through a small orchestration graph: a
// central decision node routes between preprocessing, an authorization-
// gated memory boundary, a model backend, guardrail-bounded tool
// execution, and a terminal formatting step. Every boundary degrades
// instead of failing: a broken store, tool, model, or tracer changes
// state fields, never control flow.
//
// # Quick Start
//
//	backend := openaicompat.New(apiKey, "https://api.example.com/v1", "model-name")
//	registry := relay.NewRegistry()
//	registry.Register(websearch.New(websearch.Credentials{Brave: braveKey}))
//
//	rt, err := relay.New(backend,
//		relay.WithTools(registry),
//		relay.WithMemory(sqlite.New("relay.db")),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := rt.Invoke(ctx, relay.TurnRequest{
//		Input:          "latest Go release notes",
//		ConversationID: relay.NewID(),
//		TraceID:        relay.NewID(),
//	})
//
// Conversation and trace identifiers are caller-supplied; the runtime
// never generates them. Shims use [NewID] to mint missing ones before
// entry.
//
// # Core Interfaces
//
// The root package defines the contracts all components implement:
//
//   - [ModelBackend] — generation boundary (provider/openaicompat, provider/anthropic)
//   - [MemoryStore] — turn memory boundary (store/sqlite, store/postgres, store/redis)
//   - [LongTermMemory] — durable cross-conversation memory (contract only)
//   - [Tool] — pluggable capability (tools/websearch, tools/fetch, mcp.Remote)
//   - [Tracer] — span and event sink (observer package, NoopTracer default)
//   - [Node] — one unit of turn work driven by the decision node
//
// Tool output reaches a prompt only after sanitization: URL scheme
// filtering, snippet truncation, result caps, and character budgets, all
// defined by the guardrail constants in this package.
package relay
