package backend

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("sink gone") }

func TestForwardLines(t *testing.T) {
	sink := &bytes.Buffer{}
	forwardLines(strings.NewReader("starting\nlistening on stdio\n"), sink)
	assert.Equal(t, "[amg-mcp] starting\n[amg-mcp] listening on stdio\n", sink.String())

	assert.NotPanics(t, func() {
		forwardLines(strings.NewReader("a\nb"), brokenWriter{})
	})
}
