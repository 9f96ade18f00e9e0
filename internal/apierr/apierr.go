// Package apierr provides a standardized error value for Host API Surface
// argument-validation failures: which call, which instance, and what was
// wrong. It never crosses into an HTTP response or a script-visible Lua
// error — the Host API Surface always swallows these into a sink.Warn line
// and a zero return (spec.md §4.3) — but keeping the structured value
// around makes that line easy to build consistently and easy to assert on
// in tests. Grounded on the teacher's internal/errors.AppError (code,
// message, details), with the HTTP status-code mapping dropped since this
// package has no HTTP surface to map onto.
package apierr

import "fmt"

// CallError describes one Host API Surface call site that failed argument
// validation.
type CallError struct {
	Origin string // calling instance's Origin(), e.g. "_Console" or "race.lua"
	API    string // host function name, e.g. "GetPlayerVehicles"
	Detail string // human-readable description of what was expected
}

// Error satisfies the error interface and renders the exact log-line shape
// the Host API Surface writes through ErrorSink.Warn: "<origin> | Incorrect
// Call of <api> <detail>".
func (e *CallError) Error() string {
	return fmt.Sprintf("%s | Incorrect Call of %s %s", e.Origin, e.API, e.Detail)
}

// New builds a CallError.
func New(origin, api, detail string) *CallError {
	return &CallError{Origin: origin, API: api, Detail: detail}
}
