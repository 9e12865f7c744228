// Package config defines the proxy options. Every option can be given as a
// command line flag or through the environment variable named in its env tag.
package config
