// Package notifications publishes render job and garbage collection
// lifecycle events.
//
// Publish(ctx, Event, Payload) is the only entry point. NewService composes
// the sinks enabled in config: an ntfy topic that renders operator-facing
// titles, tags and priorities; and a generic JSON webhook that receives every
// event verbatim. Outbound HTTP is rate limited with golang.org/x/time/rate
// and each event is attempted exactly once. An in-process Hub lets API
// clients subscribe to the same stream. When nothing is configured a noop
// service is returned so callers never branch on availability.
package notifications
