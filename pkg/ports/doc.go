/*
Package ports defines the driven ports (interfaces) of the workflow layer.

These interfaces decouple the executor from external implementations, so the
same workflow logic runs against any state backend, authorization policy,
graph source or event sink.

# Key Interfaces

  - StateRepository: persists per-instance task state (memory, Redis, SQLite, PostgreSQL).
  - StateController: decides who may act on a node and which nodes advance on their own.
  - GraphSource: resolves graphs by id (the in-memory catalog, fed by the file loader).
  - DistributedLocker: optional cross-process lock layered on the per-instance lock.
  - EventPublisher: receives an event for every successful submit.

RunStateRepositoryContract is the shared test suite every StateRepository
implementation runs.
*/
package ports
