// Package guard decides, on every view transition, whether to render the
// requested view, redirect, or wait for the authentication check.
package guard

import "github.com/atinyakov/imagedash/internal/models"

// View is a navigable view, identified by its path.
type View string

const (
	// Login is the credentials form.
	Login View = "/login"
	// Gallery is the default view.
	Gallery View = "/"
)

// Action is what the front end does with a transition.
type Action int

const (
	// Render shows the requested view.
	Render Action = iota
	// Redirect navigates to Decision.Target instead.
	Redirect
	// Wait shows a neutral loading state; protected content must not
	// flash while the check is in flight.
	Wait
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Wait:
		return "wait"
	}
	return "unknown"
}

// Decision is the outcome of Decide.
type Decision struct {
	Action Action
	Target View
}

// Decide applies the guard rules to a transition towards target.
func Decide(target View, state models.SessionState) Decision {
	switch {
	case state == models.SessionAuthenticating:
		return Decision{Action: Wait, Target: target}
	case target == Login && state == models.SessionAuthenticated:
		return Decision{Action: Redirect, Target: Gallery}
	case target != Login && state != models.SessionAuthenticated:
		return Decision{Action: Redirect, Target: Login}
	}
	return Decision{Action: Render, Target: target}
}
