package main

import (
	"net/url"

	"github.com/cockroachdb/errors"
)

// parseCallbackPath returns the path component of the redirect URI.
func parseCallbackPath(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", errors.Wrap(err, "invalid redirect uri")
	}
	if u.Path == "" || u.Path == "/" {
		return "", errors.Newf("redirect uri %q has no path", redirectURI)
	}
	return u.Path, nil
}
