// Package framing implements header delimited message framing over a byte stream.
//
// Each frame is a `Content-Length: <n>` header, a blank line and exactly n bytes of
// compact JSON. Both CRLF and bare LF separators are accepted when reading.
package framing
