package db

var redirectTransitions = map[RedirectStatus]map[RedirectStatus]bool{
	RedirectStatusScheduled: {
		RedirectStatusActive:    true,
		RedirectStatusCancelled: true,
	},
	RedirectStatusActive: {
		RedirectStatusCompleted: true,
	},
}

// CanTransitionRedirect reports whether a record may move from one status to another.
// Terminal states have no outgoing edges, a same-state write is not a transition.
func CanTransitionRedirect(from, to RedirectStatus) bool {
	return redirectTransitions[from][to]
}
