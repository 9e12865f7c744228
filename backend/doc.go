// Package backend owns the amg-mcp child process: launching it, performing the
// initialize and tools/list handshake, filtering call arguments to what each tool
// accepts, and supervising a single shared session that is replaced on any
// transport fault.
package backend
