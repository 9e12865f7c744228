// Package identity obtains bearer tokens from the container managed identity
// endpoint and exposes them as cached oauth2 token sources, one per resource.
package identity
