// Package dag holds the field dependency graph: for every field, the ordered
// set of fields whose dynamic properties read it.
//
// The graph is rebuilt wholesale whenever the set of connected fields
// changes. It is never patched incrementally, so removed fields cannot leave
// dangling dependents behind.
package dag
