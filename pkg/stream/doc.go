// Package stream owns the single backend event subscription and fans each
// payload out to registered subscribers. The subscription starts with the first
// subscriber, survives unsubscribes, and reconnects with exponential backoff
// until the hub is closed.
package stream
