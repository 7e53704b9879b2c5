package protocol

import "errors"

// ErrPayloadTooLarge is returned by Encode when the plaintext cannot fit
// within MaxPacketSize even before padding.
var ErrPayloadTooLarge = errors.New("protocol: payload too large")

// ErrCryptoFail marks an AEAD seal/open failure. Open failures are expected
// traffic (wrong key, noise) and are reported to callers as a boolean, not
// this error; it surfaces only for the unexpected Encode-side failure path.
var ErrCryptoFail = errors.New("protocol: crypto operation failed")
