// Package httpserver provides the HTTP server the lay relay runs in.
//
// BaseServer mounts any number of RouteRegistrar implementations on a chi
// router, logs their requests through go-utils/httplogger and adds the
// standard operational endpoints:
//
//   - /livez: liveness check
//   - /readyz: readiness, 503 while draining or when ReadinessCheck fails
//   - /drain, /undrain: start or cancel a drain
//
// Draining flips /readyz to 503 at once. After DrainDuration, registrars that
// implement Drainer are told to refuse writes, which for the relay means new
// posts and profiles get STORE_UNAVAILABLE while queries keep working.
//   - /debug/pprof: when EnablePprof is set
//
// Relay counters are served separately on MetricsAddr at /metrics.
//
// # Usage
//
//	handler := relay.NewHandler(r, relay.HandlerConfig{})
//	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr:     ":8080",
//	    Log:            logger,
//	    ReadinessCheck: store.Ping,
//	    DrainDuration:  time.Second,
//	}, handler)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	<-ctx.Done()
//	<-srv.Drain()
//	srv.Shutdown()
package httpserver
