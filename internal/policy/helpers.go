package policy

import "fmt"

type helper int

const (
	helperAuthenticated helper = iota
	helperOwner
	helperFlag
	helperRelationship
)

// helperOrder is the fixed order helpers appear in the output.
var helperOrder = []helper{helperAuthenticated, helperOwner, helperFlag, helperRelationship}

func (h helper) deps() []helper {
	switch h {
	case helperOwner, helperFlag, helperRelationship:
		return []helper{helperAuthenticated}
	}
	return nil
}

func (h helper) source(actors string) string {
	switch h {
	case helperAuthenticated:
		return "    function isAuthenticated() {\n" +
			"      return request.auth != null;\n" +
			"    }\n"
	case helperOwner:
		return "    function isOwner(uid) {\n" +
			"      return isAuthenticated() && request.auth.uid == uid;\n" +
			"    }\n"
	case helperFlag:
		return "    function hasFlag(field, value) {\n" +
			fmt.Sprintf("      return isAuthenticated() && get(/databases/$(database)/documents/%s/$(request.auth.uid)).data[field] == value;\n", actors) +
			"    }\n"
	case helperRelationship:
		return "    function relationshipExists(collection) {\n" +
			"      return isAuthenticated() && exists(/databases/$(database)/documents/$(collection)/$(request.auth.uid));\n" +
			"    }\n"
	}
	return ""
}
