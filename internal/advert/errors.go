package advert

import "errors"

// ErrTruncatedPayload is returned by a strict Decoder when a vendor marker is
// found but the payload ends before the full identifier.
var ErrTruncatedPayload = errors.New("advert: payload truncated after vendor marker")
