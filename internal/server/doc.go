// Package server hosts the Fiber HTTP service that fronts the deployment
// origin: it attaches recover and request-ID middlewares, exposes the /-/
// control surface (message post, health), and hands every other request to
// the injected request handler. The engine lifecycle runs beside the server;
// the handler consults it per request, so the server itself stays a thin
// shell. Keep exports narrow and accept explicit dependencies.
package server
