// Package expr compiles user-supplied expression strings into positional
// callables bound to a fixed, ordered list of free-variable names.
//
// Expressions use the HCL native expression syntax (arithmetic, comparison,
// logical operators, conditionals, member and index access, templates and
// calls into a fixed function whitelist). Nothing outside the whitelist and
// the declared variables is reachable from an expression, so configuration
// cannot execute arbitrary code.
//
// A Compiled value pairs the name list used at compile time with the parsed
// program. Evaluation takes one argument per name, in that exact order.
package expr
