// Package form is the reactive update engine.
//
// A Controller binds host inputs to the field registry, compiles every
// field, group and generic expression against a positional scope, and keeps
// the fields consistent whenever a value changes. A change runs a cascade:
// the changed field is re-evaluated, and every field that depends on it is
// visited depth-first. A branch stops as soon as a visited field neither
// changes a property nor flips its visibility.
//
// All mutation happens under the controller's lock, so the registry and the
// dependency graph behave as if they were touched from a single thread.
// Input listeners fire outside that lock; inputs must not notify their
// listeners from SetValue.
package form
