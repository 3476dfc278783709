// Package workflow implements the workflow composition and execution-graph
// core of Lineage: the Plan and CompositePlan models, the reference
// expression resolver, the execution graph builder, the value resolution
// engine, and the iteration expander.
//
// # Plans and CompositePlans
//
// A Plan is the immutable template of a single command invocation with
// ordered inputs, outputs, and plain parameters. A CompositePlan groups
// child Plans and CompositePlans, exposes parameters via Mappings, and
// declares forced data-flow edges via Links. Both satisfy the Step
// interface; algorithms operate through it without downcasting except for
// leaf command-line assembly.
//
// Plans are copy-on-write: "editing" goes through Derive, which produces a
// new identity linked to the prior version via DerivedFrom. Deletion is
// logical (InvalidatedAt) so reruns can always find old versions.
//
// # Reference expressions
//
// Mappings and links are declared with a small reference mini-language:
// absolute dotted references ("step1.param", "outer.inner.param") and
// positional references ("@step2.@input1", "@mapping1"). See
// ResolveReference for the grammar.
//
// # Execution graph
//
// BuildGraph flattens a composite into leaf plans and derives a dependency
// DAG from declared links, optionally auto-detecting "virtual links" from
// matching default path values. Cycle detection and topological sorting
// produce the partial execution order handed to a provider; nodes with no
// path between them may legally run in parallel.
//
// # Value resolution
//
// ApplyValues applies an override document onto a derived copy of a plan
// tree with five precedence layers (defaults, mapping defaults, mapping
// overrides, parameter overrides, link propagation). ExpandIterations
// generates the cross-product or tag-zipped set of parametrized plans with
// {iter_index} substitution.
//
// Everything in this package is a pure in-memory transformation: no I/O, no
// goroutines, deterministic output for identical input.
package workflow
