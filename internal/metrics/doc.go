// Package metrics implements the request metrics collector that wraps every
// inbound HTTP request served by docscribe.
//
// The collector keeps four aggregates for the lifetime of the process:
//
//   - request counts per route key ("METHOD:PATH"), bumped before the
//     request is handed to the rest of the pipeline
//   - response counts per HTTP status code
//   - the running sum of request durations
//   - the number of requests whose duration was recorded
//
// Only requests that complete contribute to the last three. A request whose
// handler fails (panics, in the HTTP rendition) is logged with its duration
// and then re-raised untouched; its route counter stays incremented but the
// status, latency and completion aggregates are left alone.
//
// Route keys use the raw request path, so every distinct URL gets its own
// counter. The Prometheus mirror labels by chi route pattern instead.
//
// # Usage
//
//	collector := metrics.New(logger)
//	r := chi.NewRouter()
//	r.Use(collector.Middleware)
//	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
//		json.NewEncoder(w).Encode(collector.Snapshot())
//	})
package metrics
