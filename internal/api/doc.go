// Package api exposes the BlockPay HTTP interface: the agent chat endpoint, the
// wallet capability endpoints used by the web UI, the knowledge graph
// pass-through and the exchange log. Routing is built on gin.
package api
