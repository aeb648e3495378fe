// Package cli builds the jform command tree. It maps flags and environment
// defaults onto app.Config and failures onto process exit codes.
package cli
