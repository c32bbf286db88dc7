package app

import "context"

// Route names a screen.
type Route int

const (
	RouteHome Route = iota
	RouteProfile
	RouteLogin
	RouteRegister
)

func (r Route) String() string {
	switch r {
	case RouteHome:
		return "home"
	case RouteProfile:
		return "profile"
	case RouteLogin:
		return "login"
	case RouteRegister:
		return "register"
	}
	return "unknown"
}

// RequiresAnonymity reports whether the screen is only for signed-out users.
func (r Route) RequiresAnonymity() bool {
	return r == RouteLogin || r == RouteRegister
}

// Decision is the outcome of a guard check.
type Decision int

const (
	Render Decision = iota
	RedirectHome
	RedirectLogin
)

// Decide gates a screen on account presence.
func Decide(route Route, signedIn bool) Decision {
	if route.RequiresAnonymity() {
		if signedIn {
			return RedirectHome
		}
		return Render
	}
	if !signedIn {
		return RedirectLogin
	}
	return Render
}

// Guard resolves navigation against the current session.
type Guard struct {
	auth interface {
		Session
		AwaitReady(ctx context.Context) error
	}
}

// NewGuard creates a Guard over the auth gateway.
func NewGuard(auth AuthGateway) Guard {
	return Guard{auth: auth}
}

// Ready blocks until the auth subsystem reports its first definitive state.
// Call once at startup before rendering any screen.
func (g Guard) Ready(ctx context.Context) error {
	return g.auth.AwaitReady(ctx)
}

// Resolve returns the screen that should actually be shown for route.
func (g Guard) Resolve(route Route) Route {
	_, signedIn := g.auth.Current()
	switch Decide(route, signedIn) {
	case RedirectHome:
		return RouteHome
	case RedirectLogin:
		return RouteLogin
	}
	return route
}
