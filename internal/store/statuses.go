package store

// UnknownStatusID marks ideas whose custom status was force-deleted.
const UnknownStatusID = "deleted"

// DefaultStatuses exist for every user and are never persisted.
var DefaultStatuses = []StatusDefinition{
	{ID: "not-started", Name: "Not Started", Color: "#6b7280"},
	{ID: "in-progress", Name: "In Progress", Color: "#3b82f6"},
	{ID: "completed", Name: "Completed", Color: "#10b981"},
}

func IsDefaultStatus(id string) bool {
	for _, status := range DefaultStatuses {
		if status.ID == id {
			return true
		}
	}
	return false
}

// IsReservedStatusID reports whether id may not be used for a custom status.
func IsReservedStatusID(id string) bool {
	return id == UnknownStatusID || IsDefaultStatus(id)
}

// StatusName resolves id against the defaults and custom, falling back to
// "Unknown" for the sentinel and for dangling references.
func StatusName(id string, custom []StatusDefinition) string {
	for _, status := range DefaultStatuses {
		if status.ID == id {
			return status.Name
		}
	}
	for _, status := range custom {
		if status.ID == id {
			return status.Name
		}
	}
	return "Unknown"
}
