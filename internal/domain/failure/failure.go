// Package failure provides failure classes shared across components.
package failure

import "github.com/cockroachdb/errors"

// ErrNetwork marks errors caused by a failed or rejected network call.
var ErrNetwork = errors.New("network failure")

// Network wraps err with msg and marks it as a network failure.
// Returns nil if err is nil.
func Network(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrNetwork)
}
