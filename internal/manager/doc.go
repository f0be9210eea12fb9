// Package manager is the multi-model orchestration core: it decides
// which backend instances exist at any moment, serializes their
// creation, evicts least-recently-used instances under pressure, and
// exposes a uniform dispatch surface. It is structured into small files
// by concern:
//
//   - manager.go: core Manager type, Run loop, simple getters.
//   - config.go: ManagerConfig and package defaults.
//   - types.go: instance state types.
//   - registry.go: the live instance set and its queries.
//   - evict.go: eviction policy (NPU exclusivity, LRU within type,
//     full-reset fallback) and drain-then-destroy mechanics.
//   - loader.go: the single-worker load serializer.
//   - guard.go: per-request reference counting (busy guard).
//   - dispatch.go: request forwarding and SSE stream relay.
//   - telemetry.go: usage/timings extraction from backend responses.
//   - spawn.go: Spawner interface and the exec-based implementation.
//   - health.go: crashed-backend detection.
//   - unload.go: explicit unload paths.
//   - errors.go: error taxonomy and Is* helpers.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus instrumentation.
//
// External packages should treat this package as the orchestration
// layer and use public methods only (NewWithConfig, Run, RequestLoad,
// Dispatch, Unload, Health, Stats). Internal types are subject to
// change.
package manager
