package session

// Reason explains why a session ended. It only selects the message shown to the user.
type Reason string

const (
	ReasonUserInitiated  Reason = "user-initiated"
	ReasonSessionExpired Reason = "session-expired"
	ReasonRefreshFailed  Reason = "refresh-failed"
	ReasonInvalidToken   Reason = "invalid-token"
)

func (r Reason) Message() string {
	switch r {
	case ReasonUserInitiated:
		return "You have been signed out."
	case ReasonSessionExpired:
		return "Your session has expired. Please sign in again."
	case ReasonRefreshFailed:
		return "We could not keep your session alive. Please sign in again."
	case ReasonInvalidToken:
		return "Your session is no longer valid. Please sign in again."
	default:
		return "You have been signed out."
	}
}

// Notifier shows a user-facing message, a toast in the portal UI.
type Notifier interface {
	Notify(reason Reason, message string)
}

// Navigator sends the user back to the login surface.
type Navigator interface {
	RedirectToLogin(reason Reason)
}

type NotifierFunc func(reason Reason, message string)

func (f NotifierFunc) Notify(reason Reason, message string) { f(reason, message) }

type NavigatorFunc func(reason Reason)

func (f NavigatorFunc) RedirectToLogin(reason Reason) { f(reason) }

type nopNotifier struct{}

func (nopNotifier) Notify(Reason, string) {}

type nopNavigator struct{}

func (nopNavigator) RedirectToLogin(Reason) {}
