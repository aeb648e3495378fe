// Package registry owns the live field records of a form.
//
// A Field is created the first time a host input is discovered and matched
// against the configuration (or synthesized, for computed names and for
// prototyping forms without a field model). Records are mutated by every
// cascade and are never removed, only reset to their default or to null.
//
// Resolution merges two layers with a fixed precedence: explicit form
// configuration wins over the defaults the host input declares itself.
package registry
