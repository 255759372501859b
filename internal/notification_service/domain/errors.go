package domain

import "errors"

// ErrNoDestinations means the caller supplied no usable channel/address pair.
// It is a validation failure: reported synchronously, never logged as an
// attempt and never retried.
var ErrNoDestinations = errors.New("no destination configured")

// ErrUnknownChannel means a payload referenced a channel kind outside the
// closed set. Permanent: retrying cannot fix it.
var ErrUnknownChannel = errors.New("unknown notification channel")

// ErrPermanentFailure means every delivery attempt failed for a reason that
// cannot change on retry, such as missing provider configuration.
var ErrPermanentFailure = errors.New("permanent delivery failure")

// IsPermanent reports whether err can never succeed on retry and must not be
// scheduled for re-invocation.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNoDestinations) ||
		errors.Is(err, ErrUnknownChannel) ||
		errors.Is(err, ErrPermanentFailure)
}
