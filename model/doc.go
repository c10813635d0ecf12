// Package model abstracts the generative language backend behind the Backend
// interface: a prompt with optional system instructions goes in, text comes
// out, and any failure is reported as a *core.BackendError. Vendor adapters
// live in the openai and anthropic subpackages; MockBackend provides a
// deterministic in-memory implementation for tests.
package model
