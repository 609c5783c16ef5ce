package codec

import "errors"

var (
	ErrContentTooLong       = errors.New("codec: content too long")
	ErrContentEmpty         = errors.New("codec: content empty")
	ErrFieldTooLong         = errors.New("codec: field too long")
	ErrTruncatedAccount     = errors.New("codec: truncated buffer")
	ErrUnknownDiscriminator = errors.New("codec: unknown discriminator")
	ErrMalformedAccount     = errors.New("codec: malformed account")
)
