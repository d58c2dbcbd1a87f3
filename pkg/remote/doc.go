// Package remote implements the caller side of the channel protocol and the
// dispatch loop shared by both peers.
//
// A Proxy turns a peer's descriptor list into callable procedures: Invoke
// validates arity, encodes params, registers a Deferred under a fresh
// correlation id and sends the request. Resolve settles that Deferred when
// the matching response arrives. An Endpoint pairs a Proxy with the local
// Registry and handlers and routes every inbound message to one or the other.
package remote
