// Package gemini provides an implementation of the generation.Generator
// interface that uses Google's Gemini API for goal extraction, structure
// planning and card generation.
//
// This package is an infrastructure adapter: it translates between the
// application's domain models and the Gemini API without exposing the
// details of the external service to the core application. All three
// generation calls share the same retry machinery, which backs off
// exponentially with jitter on transient errors and returns immediately
// on permanent ones (blocked content, malformed responses).
package gemini
