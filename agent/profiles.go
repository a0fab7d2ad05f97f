package agent

// Customers never get write or shell access; the admin can edit knowledge
// and memory files through the engine.
var (
	adminTools    = []string{"Read", "Write", "Edit", "Glob", "Grep", "WebSearch", "WebFetch"}
	customerTools = []string{"Read", "WebSearch", "WebFetch"}
)

// ToolsFor returns the engine tool allowlist for a sender.
func ToolsFor(isAdmin bool) []string {
	if isAdmin {
		return append([]string(nil), adminTools...)
	}
	return append([]string(nil), customerTools...)
}
