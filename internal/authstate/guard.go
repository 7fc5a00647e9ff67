package authstate

// Decision is the outcome of a route guard.
type Decision int

const (
	Wait Decision = iota
	RedirectLogin
	RedirectLanding
	Allow
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLanding:
		return "redirect_landing"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// GuardAdmin checks loading, then session, then role. The order matters: an
// admin whose role lookup is still running must not be bounced.
func GuardAdmin(s State) Decision {
	if d := GuardSession(s); d != Allow {
		return d
	}
	if !s.IsAdmin {
		return RedirectLanding
	}
	return Allow
}

// GuardSession only requires a signed-in visitor.
func GuardSession(s State) Decision {
	if s.Loading || s.Phase == PhaseUninitialized || s.Phase == PhaseResolving {
		return Wait
	}
	if s.Session == nil {
		return RedirectLogin
	}
	return Allow
}
