// Package redis opens the shared go-redis clients used by the conversation
// memory and the exchange event publisher.
package redis
