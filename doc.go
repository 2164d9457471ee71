// Package brickflow provides a composable content-conversion framework built
// around pipes of bricks.
//
// # Concepts
//
// A brick is a unit of work over content. Viewer bricks present content; encoder
// bricks translate it between representations in both directions. Every brick
// carries a set of typed settings that validate, filter, and deduplicate their
// values before any change is applied.
//
// A pipe is an ordered sequence of bricks. Content entering the pipe flows
// through each encoder in turn; viewers observe the stream at their position
// without altering it. Pipes are built from serialized records through a brick
// registry, so a pipe persisted in one process can be reconstructed in another.
//
// # Layout
//
//   - setting: typed settings with validation, value filtering, and change
//     notification
//   - brick: the Brick interface, base implementations, and the Registry that
//     maps kind names to factories
//   - pipe: pipe assembly, brick insertion and removal, content propagation,
//     and lazy views
//   - pipestore: pipe persistence on NATS JetStream key-value buckets with
//     optimistic concurrency
//   - gateway: the HTTP API and the WebSocket event hub
//   - view/drawer: Graphviz rendering of pipe topology
//   - config, health, metric, errors: service configuration, health
//     monitoring, Prometheus metrics, and classified errors
//
// The brickflow binary under cmd/brickflow wires these packages into a
// standalone service.
package brickflow
