package dashboard

import "encoding/base64"

// PlaceholderPNG is a 1x1 PNG, base64 encoded.
const PlaceholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mP8/x8AAwMCAO5N5sYAAAAASUVORK5CYII="

// PlaceholderSize is the decoded size of PlaceholderPNG.
var PlaceholderSize = func() int {
	data, _ := base64.StdEncoding.DecodeString(PlaceholderPNG)
	return len(data)
}()
