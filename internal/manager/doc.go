// Package manager owns the model lifecycle: which pipelines are resident
// in accelerator memory, which weight caches stay on disk, and how
// concurrent requests trigger, await and reuse loads. It is structured
// into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (Phase, ModelRuntime, Snapshot).
//   - errors.go: error types and helpers (IsModelNotFound, IsModelNotReady, ...).
//   - load.go: RequestLoad and the asynchronous load task (tiered
//     construction, validation, warm-up, fallback substitution).
//   - evict.go: accelerator-memory eviction policy and single-model eviction.
//   - diskcache.go: disk-quota eviction policy over the weight cache root.
//   - metadata.go: durable usage counters (atomic JSON persistence).
//   - maintenance.go: periodic memory/disk sweeps and orderly shutdown.
//   - status.go: GetOrLoad facade, snapshots and status reporting.
//   - generate.go: foreground generation entry points.
//   - metrics.go: prometheus instrumentation.
//   - events.go: lifecycle event publishing (MemoryPublisher for tests).
//
// Concurrency discipline: one mutex guards the whole model map. Phase
// transitions, counter updates and pipeline handle assignment happen under
// the lock; engine construction, warm-up and generation always run outside
// it. A model in the loading phase is only ever transitioned by its own
// load task, so eviction policies skip loading models unconditionally.
//
// External packages should treat this package as the orchestration layer
// and use public methods only (NewWithConfig, Start, GetOrLoad, Generate,
// ListStatuses, Status, Close). Internal types are subject to change.
package manager
