// Package persist writes wizard sections through a Collaborator.
//
// The Adapter overlays the FK context on every write, so foreign-key columns
// always carry the keys resolved so far. A Flow drives one section save
// through nested repeat blocks with an explicit frame stack and reports the
// completion the wizard applies to its FK context.
package persist
