// Package visibility decides which wizard steps are displayable from the FK
// context, the completed-step set and the schema. Resolution is pure and is
// recomputed on every render; nothing is cached across FK-context changes.
package visibility
