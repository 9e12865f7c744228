package backend

import (
	"bufio"
	"io"
)

// DiagnosticTag prefixes every forwarded stderr line.
const DiagnosticTag = "[amg-mcp] "

// forwardLines copies r to sink line by line, tagging each line. Write errors are
// ignored; r is drained until it closes.
func forwardLines(r io.Reader, sink io.Writer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		_, _ = io.WriteString(sink, DiagnosticTag+scanner.Text()+"\n")
	}
	_, _ = io.Copy(io.Discard, r)
}
