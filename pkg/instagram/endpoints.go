package instagram

const (
	// BaseURL is the base URL for Instagram's private web API
	BaseURL = "https://www.instagram.com"

	// AccountInfoEndpoint is the cheapest read-only call against the
	// authenticated session, used as the liveness probe
	AccountInfoEndpoint = "/api/v1/accounts/current_user/"

	// LoginEndpoint is the web login endpoint
	LoginEndpoint = "/api/v1/web/accounts/login/ajax/"

	// SharedDataEndpoint serves the pre-login CSRF token
	SharedDataEndpoint = "/data/shared_data/"
)
