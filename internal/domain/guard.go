package domain

import "strings"

// SPA routes the guards redirect to.
const (
	PathAuth             = "/auth"
	PathAuthVerify       = "/auth/verify"
	PathAuthRole         = "/auth/role"
	PathAuthRegistration = "/auth/registration"
)

// RoleRequirement is what a guarded subtree demands. The zero value means
// the route is public.
type RoleRequirement string

const (
	RequirePublic RoleRequirement = ""
	RequireAny    RoleRequirement = "any"
)

// Require returns the requirement for a specific role.
func Require(role Role) RoleRequirement {
	return RoleRequirement(role)
}

// GuardState is the slice of session state the guards look at.
type GuardState struct {
	IsAuthenticated bool `json:"isAuthenticated"`
	IsVerified      bool `json:"isVerified"`
	Role            Role `json:"role"`
}

// RouteDecision is either "render" (Allow) or a replace-navigation to Redirect.
type RouteDecision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
}

func allow() RouteDecision { return RouteDecision{Allow: true} }

func redirect(path string) RouteDecision { return RouteDecision{Redirect: path} }

// ResolveRoute applies a single guard.
func ResolveRoute(state GuardState, req RoleRequirement) RouteDecision {
	if req == RequirePublic {
		return allow()
	}
	if !state.IsAuthenticated {
		return redirect(PathAuth)
	}
	if !state.IsVerified {
		return redirect(PathAuthVerify)
	}
	if state.Role == "" {
		return redirect(PathAuthRole)
	}
	if !state.Role.IsValid() {
		return redirect(PathAuth)
	}
	if req == RequireAny || Role(req) == state.Role {
		return allow()
	}
	return redirect(state.Role.BasePath())
}

// EvaluateGuards applies nested guards outermost first; the first guard to
// redirect wins.
func EvaluateGuards(state GuardState, reqs ...RoleRequirement) RouteDecision {
	for _, req := range reqs {
		if d := ResolveRoute(state, req); !d.Allow {
			return d
		}
	}
	return allow()
}

// RequirementsForPath lists the guards wrapping an SPA path, outermost first.
// Role dashboards sit behind an "any authenticated" guard and then their role
// guard.
func RequirementsForPath(path string) []RoleRequirement {
	clean := "/" + strings.Trim(strings.TrimSpace(path), "/")
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	segment := strings.SplitN(strings.TrimPrefix(clean, "/"), "/", 2)[0]

	switch segment {
	case "", "auth":
		return nil
	case "settings", "profile", "messages", "payments":
		return []RoleRequirement{RequireAny}
	}
	if role := Role(segment); role.IsValid() {
		return []RoleRequirement{RequireAny, Require(role)}
	}
	return nil
}
