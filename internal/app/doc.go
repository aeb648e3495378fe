// Package app wires a loaded form model to its controller, submission
// pipeline and plugins, and exposes the result to the CLI and the HTTP API.
package app
