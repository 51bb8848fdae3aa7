// Package engine wires the taskq subsystems together and provides the
// application-level API for registering task definitions and enqueuing
// work.
//
// The engine package exists to break an import cycle: the root taskq
// package defines Entity and Config (imported by task, store, worker)
// and therefore cannot import those packages back. Engine sits above all
// subsystem packages and below the application layer.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithStore(pgStore),
//	    engine.WithLogger(logger),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	    engine.WithThrottleConfig(throttle.Config{
//	        Type:      "CHARGE_PAYMENT",
//	        RateLimit: 50,
//	    }),
//	)
//
// # Registering Handlers
//
//	engine.Register(eng, task.NewDefinition("SUBSCRIPTION_RENEWAL",
//	    func(ctx context.Context, p RenewalPayload) error {
//	        return renewals.Process(ctx, p)
//	    },
//	    task.WithMaxAttempts(5),
//	))
//
// # Enqueuing Tasks
//
//	engine.Enqueue(ctx, eng, "SUBSCRIPTION_RENEWAL", tenantID, RenewalPayload{
//	    SubscriptionID: subID,
//	})
//
//	// Scheduled, with a dedup key: enqueueing again with the same key
//	// resets the existing row instead of inserting a duplicate.
//	engine.Enqueue(ctx, eng, "SUBSCRIPTION_RENEWAL", tenantID, payload,
//	    task.WithDueAt(renewalDate),
//	    task.WithKey("renewal:"+subID),
//	)
//
// # Running
//
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(context.Background())
//
// Start launches the claim/process loop and the expired-lease sweep;
// Stop drains them within the configured shutdown timeout.
package engine
