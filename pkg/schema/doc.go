// Package schema holds the table side of a wizard configuration: the
// processing sequence, business keys, foreign keys and named relationships.
// A Config is loaded once and treated as read-only afterwards.
package schema
