package domain

// domain package contains the Domain Models and Interfaces for ripen, the delayed-label training loop.
//
// `domain/ripen` package exposes root object for the application.
// Entrypoints of applications should instantiate the Ripen object and use it to interact with the domain.
//
// `domain/ENTITY.go` has high-level entities (Domain Model types) and functions.
// For example, `domain/reading.go` contains the `Reading` entity.
//
// `domain/ENTITY` directory contains the "physical" representation of the domain entities (RDB, object storage, locks).
// For example, `domain/telemetry/db/postgres` contains the database expression of readings described in `domain/reading.go`.
//
// `domain/ENTITY/db/interface.go` exposes the client interface to handle the domain entity in DB.
//
// # Entities
//
// Core entities in the domain are:
//
// - `reading`: One telemetry sample of an entity (an implanted pacemaker), keyed by (entity id, timestamp).
// Readings are ingested idempotently: duplicates are counted, not stored twice.
// Each reading carries a LabelStatus which starts "unresolved".
//
// - `outcome`: A confirmed adverse event of an entity. Outcomes are immutable, and an entity can have many.
//
// - `label`: The supervised label of a reading. It is resolved exactly once, either by an outcome event observed
// within the maturity window after the reading (label 1), or by expiry of that window without such event (label 0).
// Once resolved, it is never rewritten (occur in "resolve loop").
//
// - `model`: A trained model version. Model versions are born as "candidate" and become "active" or "rejected"
// by the promotion gate. An active version becomes "retired" when superseded, and a retired one can be
// re-activated by rollback. At most one version is active (occur in "train loop").
//
// And others:
//
// - `artifact`: Serialized model blob paired with its metadata document.
//
// - `lock`: Exclusivity lock for training jobs.
//
// - `loop`: Manages recurring tasks. This defines constants for each loop.
// Implementation of the loop is in `cmd/loops/tasks/` directory.
