// Package jsonrender is a catalog-constrained streaming UI runtime: it turns
// an incrementally arriving stream of flat JSON element records, produced by
// a language model, into a validated, reactive interface tree.
//
// # Architecture
//
// The runtime splits into small packages with one concern each:
//
//   - catalog: the closed set of component and action definitions the model
//     may use, with per-element validation (valid, incomplete, invalid)
//   - assemble: incremental decoding of the JSON stream and merge-by-key
//     assembly of the element tree, placeholders for forward references
//   - store: the path-addressed reactive data store shared by generations
//   - visibility: pure evaluation of element visibility conditions against
//     data and auth state
//   - validation: per-field checks with touched/error state tracking
//   - action: dispatch of declarative actions with confirmation gates and
//     on-success / on-error effects
//   - session: one user's runtime instance tying all of the above together
//
// Around the core sit the transports (input/websocket, input/natsfeed), the
// model-side producer (producer/openai), prometheus instrumentation (metric)
// and configuration loading (config). cmd/jsonrender-server wires them into
// a deployable process.
//
// # Safety model
//
// The model's output is untrusted. Everything it emits passes the catalog
// gate before rendering, action dispatch checks catalog membership before
// anything else, and handler errors cross into model-addressable data as
// message strings only.
package jsonrender
