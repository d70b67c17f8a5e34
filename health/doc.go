// Package health reports whether the process can do useful work.
//
// An Aggregator runs named Checkers in parallel under one timeout.
// KeySetChecker watches the signing key cache and PingChecker probes a
// dependency such as Redis. Mount exposes the results over HTTP:
//
//	agg := health.NewAggregator(health.AggregatorConfig{})
//	agg.Register("keyset", health.NewKeySetChecker(keys))
//	agg.Register("redis", health.PingChecker(redisCache))
//	health.Mount(router, agg)
//
// /healthz always answers OK while the process runs, /readyz answers 503
// when any check is unhealthy, and /health returns per-check detail.
package health
