package auth

// HTTP header constants for authentication.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is the WWW-Authenticate header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"
)

// Authentication scheme constants.
const (
	// AuthSchemeBearer is the Bearer authentication scheme. The header
	// value must be exactly the scheme, a single space, and the token.
	AuthSchemeBearer = "Bearer"
)
