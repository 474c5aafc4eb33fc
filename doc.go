// Package coordinator implements the core of an agent swarm orchestration
// runtime: a coordinator that spawns pools of worker agents, arranges them
// into a configurable communication topology, routes tasks and messages
// between them, persists long-lived sessions with checkpoint/resume,
// maintains a tiered working/episodic/persistent memory, and dispatches
// generation requests to pluggable LLM providers with health-aware
// fallback.
//
// # Layout
//
//   - session    — session lifecycle, checkpointing, crash-consistent persistence
//   - topology   — hierarchical / mesh / star communication graphs
//   - pool       — worker lifecycle and load-balanced task distribution
//   - memory     — tiered working/episodic/persistent cache
//   - llmrouter  — rule-driven provider selection with fallback
//   - provider   — the LLM provider adapter contract and concrete adapters
//
// This package itself holds the shared domain model (Agent, Task, Message)
// that every subpackage operates on, plus the closed error-code set
// returned across component boundaries.
//
// # Scope
//
// The outer request/response transport that invokes the coordinator, the
// concrete HTTP clients for individual LLM backends, the on-disk storage
// engine, and the surrounding tool registry are treated as external
// collaborators and are identified only by the interfaces the core
// consumes.
package coordinator
