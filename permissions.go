package breadbox

import (
	"fmt"
	"math"
)

// Group is the access tier required for an action. Numbered groups form a
// total order on auth levels; GroupNobody denies everyone including admins.
type Group int

const (
	GroupEveryone     Group = 0
	GroupUsers        Group = 1
	GroupContributors Group = 2
	GroupAdmin        Group = 3
	GroupNobody       Group = math.MaxInt32
)

func (g Group) String() string {
	switch g {
	case GroupEveryone:
		return "everyone"
	case GroupUsers:
		return "users"
	case GroupContributors:
		return "contributors"
	case GroupAdmin:
		return "admin"
	case GroupNobody:
		return "nobody"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// ParseGroup parses a configured group name. An unknown name is a
// configuration error and must be rejected at startup, not at request time.
func ParseGroup(s string) (Group, error) {
	switch s {
	case "everyone":
		return GroupEveryone, nil
	case "users":
		return GroupUsers, nil
	case "contributors":
		return GroupContributors, nil
	case "admin":
		return GroupAdmin, nil
	case "nobody":
		return GroupNobody, nil
	default:
		return 0, fmt.Errorf("unknown permission group: %q", s)
	}
}

// Action classifies an HTTP method for permission resolution.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionOther  Action = "other"
)

// ActionForMethod maps an HTTP method to its action.
func ActionForMethod(method string) Action {
	switch method {
	case "GET", "HEAD":
		return ActionRead
	case "POST", "PUT", "PATCH":
		return ActionWrite
	case "DELETE":
		return ActionDelete
	default:
		return ActionOther
	}
}

// ActionGroups holds the configured group per action, validated at startup.
type ActionGroups struct {
	Read   Group
	Write  Group
	Delete Group
	Other  Group
}

// For returns the group configured for the given action.
func (a ActionGroups) For(action Action) Group {
	switch action {
	case ActionRead:
		return a.Read
	case ActionWrite:
		return a.Write
	case ActionDelete:
		return a.Delete
	default:
		return a.Other
	}
}

// Decision is the outcome of a permission resolution.
type Decision int

const (
	// DecisionAllow admits the request without requiring a credential.
	DecisionAllow Decision = iota
	// DecisionDeny rejects the request for everyone (disabled feature).
	DecisionDeny
	// DecisionAuthenticate requires a credential with sufficient auth level.
	DecisionAuthenticate
)

// Resolve maps a group to a coarse decision. For DecisionAuthenticate the
// caller compares the credential's auth level against Threshold.
func (g Group) Resolve() Decision {
	switch g {
	case GroupEveryone:
		return DecisionAllow
	case GroupNobody:
		return DecisionDeny
	default:
		return DecisionAuthenticate
	}
}

// Threshold returns the minimum auth level the group admits.
func (g Group) Threshold() int {
	return int(g)
}

// Admits reports whether an auth level satisfies the group.
func (g Group) Admits(authLevel int) bool {
	switch g.Resolve() {
	case DecisionAllow:
		return true
	case DecisionDeny:
		return false
	default:
		return authLevel >= g.Threshold()
	}
}
