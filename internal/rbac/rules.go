package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"session:start",
		"session:save",
		"session:submit",
		"session:view-own",
	},
	"teacher": {
		"quiz:create",
		"quiz:view",
		"quiz:view-keys",
		"quiz:results",
		"quiz:publish-results",
		"session:view-all",
	},
	"admin": {
		"*", // everything
	},
}
