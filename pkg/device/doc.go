// Package device validates HypeRate device identifiers and extracts
// them from shareable viewer URLs.
//
// Device IDs are short alphanumeric tokens assigned by HypeRate
// (for example "abc123"). The literal ID "internal-testing" is a
// sentinel channel the relay provides for integration testing and is
// also accepted.
//
// All functions are pure; errors are returned as values and never
// cross the session boundary.
package device
