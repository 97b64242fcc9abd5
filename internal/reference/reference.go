// Package reference builds and parses the correlation key that ties an
// outbound answer request to the user and in-flight question its streamed
// tokens belong to. The wire form is "<userId>:<requestToken>".
package reference

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidInput is returned by Encode when a part would make the key
	// ambiguous to decode.
	ErrInvalidInput = errors.New("reference: invalid input")

	// ErrMalformedKey is returned by Decode for keys that cannot be split.
	ErrMalformedKey = errors.New("reference: malformed correlation key")
)

// Separator delimits the two parts of a correlation key.
const Separator = ":"

// Encode builds the correlation key for a user and request token. The user id
// must not contain the separator; the request token is validated the same way
// because tokens are either engine-generated hex or checked at the HTTP edge,
// and a colon here would shift the decode boundary.
func Encode(userID, requestToken string) (string, error) {
	if userID == "" || strings.Contains(userID, Separator) {
		return "", ErrInvalidInput
	}
	if requestToken == "" || strings.Contains(requestToken, Separator) {
		return "", ErrInvalidInput
	}
	return userID + Separator + requestToken, nil
}

// Decode splits a correlation key into user id and request token. It splits
// on the first separator only: not every upstream caller guarantees a
// colon-free token, so the tail is taken as-is while the head stays strict.
func Decode(key string) (userID, requestToken string, err error) {
	userID, requestToken, found := strings.Cut(key, Separator)
	if !found || userID == "" {
		return "", "", ErrMalformedKey
	}
	return userID, requestToken, nil
}
