package domain

import "strings"

// isTrivialName reports names that carry no information beyond the id.
func isTrivialName(id, name string) bool {
	name = strings.TrimSpace(name)

	return name == "" || name == id
}

// upgradeDisplayName applies the name rule: a non-trivial candidate always
// replaces the current name, a trivial one never does.
func upgradeDisplayName(id, current, candidate string) string {
	if !isTrivialName(id, candidate) {
		return strings.TrimSpace(candidate)
	}
	if strings.TrimSpace(current) == "" {
		return id
	}

	return current
}

func NodeDisplayName(node NodeRecord) string {
	if value := strings.TrimSpace(node.DisplayName); value != "" {
		return value
	}

	return strings.TrimSpace(node.ID)
}

// PreferredName picks the long name and falls back to the short one.
func PreferredName(longName, shortName string) string {
	if value := strings.TrimSpace(longName); value != "" {
		return value
	}

	return strings.TrimSpace(shortName)
}
