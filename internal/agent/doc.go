// Package agent turns one chat request into exactly one reply. It validates
// the request, acquires an agent from the configured runtime, consumes the
// runtime's chunk stream under a bounded wait and classifies failures into
// caller-facing messages.
package agent
