package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"

	CTypeHTML        = "text/html"
	CTypeJSON        = "application/json"
	CTypeCSS         = "text/css"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieAuthToken   = "auth_token"
	CookieSyntaxTheme = "syntax-theme"
)
