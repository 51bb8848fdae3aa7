// Package task defines the task entity, its status machine, typed
// definitions, and the store interface every backend implements.
//
// # Task Entity
//
// A [Task] represents a unit of deferred work. It embeds [taskq.Entity]
// for timestamps, carries an opaque JSON payload, and progresses through
// a status machine:
//
//	READY → CLAIMED → COMPLETED
//	READY → CLAIMED → READY (retry with backoff) → CLAIMED → ...
//	READY → CLAIMED → FAILED (attempt budget exhausted)
//
// COMPLETED and FAILED are terminal. A CLAIMED task whose lease expired
// is logically READY: both ClaimTasks and CleanupExpiredLocks treat it
// as claimable, so a crashed worker's task is recovered within one lease
// duration at worst.
//
// Fields of note:
//   - TenantID: owning tenant; leasing itself is tenant-agnostic
//   - Key: dedup key, unique per tenant; enqueue-with-key upserts
//   - DueAt: earliest time the task may be claimed
//   - LockOwner / LockedUntil: the lease
//   - AttemptCount / MaxAttempts: attempt budget; the counter only grows
//
// # Defining a Task Type
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at enqueue time and deserialized before the handler runs:
//
//	var ChargePayment = task.NewDefinition("CHARGE_PAYMENT",
//	    func(ctx context.Context, input ChargeInput) error {
//	        return payments.Charge(ctx, input.InvoiceID)
//	    },
//	)
//
// # Registry
//
// [Registry] maps task types to type-erased [HandlerFunc] values.
// Register definitions at startup via [RegisterDefinition]:
//
//	task.RegisterDefinition(registry, ChargePayment)
//	task.RegisterDefinition(registry, RenewSubscription)
//
// The engine package provides higher-level engine.Register and
// engine.Enqueue wrappers.
package task
