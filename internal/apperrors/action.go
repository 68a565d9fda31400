package apperrors

// Action is the presentation treatment for a classified error.
type Action string

const (
	ActionModal    Action = "modal"
	ActionBanner   Action = "banner"
	ActionToast    Action = "toast"
	ActionRedirect Action = "redirect"
	ActionSilent   Action = "silent"
)

// ActionFor selects the presentation treatment. It is a pure function of
// the category, severity, and the caller's silent flag; it owns no state
// and touches no I/O.
func ActionFor(c *Classified, silent bool) Action {
	if c == nil || silent {
		return ActionSilent
	}
	switch {
	case c.Category == CategoryAuth:
		return ActionRedirect
	case c.Category == CategoryPermission && c.Severity == SeverityHigh:
		return ActionModal
	case c.Category == CategoryNetwork && c.Severity == SeverityHigh:
		return ActionBanner
	case c.Severity == SeverityLow:
		return ActionSilent
	default:
		return ActionToast
	}
}
