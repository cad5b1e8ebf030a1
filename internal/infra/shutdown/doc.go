// Package shutdown coordinates graceful process termination.
//
// A Handler waits for SIGINT, SIGTERM, an explicit Trigger or context
// cancellation, then runs the registered hooks newest first under a
// shared deadline:
//
//	h := shutdown.NewHandler(15*time.Second, log)
//	h.OnShutdown("storage", func(context.Context) error { return engine.Close() })
//	err := h.Wait(ctx)
package shutdown
