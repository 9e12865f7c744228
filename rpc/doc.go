// Package rpc layers JSON-RPC request and notification semantics over a framed
// channel.
//
// A Client allows one outstanding request at a time: the write of a request and
// the wait for its matching response form a single critical section, and replies
// carrying any other identifier are discarded.
package rpc
