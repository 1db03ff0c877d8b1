package auth

import "strings"

// ExtractBearer extracts the token from an Authorization header value.
//
// The header must be exactly "Bearer <token>": splitting on a single
// space yields the scheme and a non-empty token, nothing else. A missing
// header maps to ErrMissingAuthHeader, every other deviation (wrong
// scheme, missing space, empty token, trailing parts) to
// ErrMalformedAuthHeader.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != AuthSchemeBearer || parts[1] == "" {
		return "", ErrMalformedAuthHeader
	}

	return parts[1], nil
}
