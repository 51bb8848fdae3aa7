// Package taskq provides a durable task-leasing queue for the subscription
// engine's background work: renewals, payment charges, delivery scheduling.
//
// Tasks are rows in a shared store. Any number of worker processes claim
// bounded batches of due tasks under a time-limited lease, execute the
// registered handler for each task type, and record the outcome. There is
// no separate coordination service: all mutual exclusion is expressed as
// conditional row transitions against the store, and crash recovery rests
// entirely on lease expiry.
//
// # Quick Start
//
//	s := memory.New()
//	eng, err := engine.New(
//	    engine.WithStore(s),
//	    engine.WithBatchSize(10),
//	)
//	engine.Register(eng, task.NewDefinition("CHARGE_PAYMENT", chargePayment))
//	eng.Start(ctx)
//
// # Architecture
//
// The task package defines the Task row, the Store persistence contract,
// and the handler Registry. Backends live under store/ (memory, postgres,
// redis). The worker package drives processing cycles and the reaper loop.
// The engine package wires everything together.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
//
// Handlers must be idempotent: a lease is a soft timeout, not a
// cancellation signal, so a slow handler may overrun its lease and the
// task may be claimed and re-executed by another worker.
package taskq
