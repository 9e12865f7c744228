// Package conv collects tiny helper functions that are not part of the public API
// but aid internal conversions.
//
// It coerces loosely typed tool arguments, as decoded from JSON, into plain Go
// values and resolves the first present key among a list of aliases.
package conv
