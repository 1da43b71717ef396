package schema

import "strings"

// normalizeRelationshipKind folds the spellings accepted in configuration
// documents onto the two cardinalities the wizard understands.
func normalizeRelationshipKind(raw string) (RelationshipKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "many", "hasmany", "has_many", "onetomany", "one_to_many":
		return RelationshipMany, true
	case "one", "hasone", "has_one", "belongsto", "belongs_to":
		return RelationshipOne, true
	default:
		return "", false
	}
}
