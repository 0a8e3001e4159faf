// Package server hosts the Fiber HTTP services: the proxy application that
// hands every request to the tape dispatcher, the admin application serving
// diagnostics, the request-ID middleware, and the shared upstream http.Client.
// Keep exports narrow and accept explicit dependencies so the proxy package
// and cmd wiring can be swapped for fakes in tests.
package server
