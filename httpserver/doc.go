/*
Package httpserver runs the keys API HTTP server.

Server owns the process-level surface around the API routes:

  - request logging through go-utils httplogger
  - per-route request counters in the metrics registry
  - liveness (/livez) and readiness (/readyz) probes
  - /drain and /undrain to take the instance out of a load balancer before shutdown
  - optional pprof under /debug
  - a separate metrics listener

The API routes themselves are registered by a RouteRegistrar, normally
*handlers.Handler.
*/
package httpserver
