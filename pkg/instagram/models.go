package instagram

import "time"

// apiResponse is the envelope Instagram wraps around private API replies.
// The message field carries the error category on failures
// (login_required, challenge_required, feedback_required).
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// loginResponse is the reply to the web login call
type loginResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	User          bool   `json:"user"`
	Message       string `json:"message"`
}

// sharedData is the subset of the pre-login shared data we need
type sharedData struct {
	Config struct {
		CSRFToken string `json:"csrf_token"`
	} `json:"config"`
}

// SessionState is the persisted session artifact. Removing it forces a
// fresh login on next use.
type SessionState struct {
	Username  string            `json:"username"`
	Cookies   map[string]string `json:"cookies"`
	UserAgent string            `json:"user_agent"`
	SavedAt   time.Time         `json:"saved_at"`
	Version   int               `json:"version"`
}
