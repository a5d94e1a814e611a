/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured log lines.

	metrics := observability.NewMetrics()
	eng, _ := drew.New(drew.WithLifecycleHooks(observability.Compose(
		metrics.Hooks(),
		observability.LoggingHooks(logger),
	)))
	http.Handle("/metrics", metrics.Handler())
*/
package observability
