package errors

import "errors"

var (
	ErrInvalid              = errors.New("invalid")
	ErrNotFound             = errors.New("not found")
	ErrTooMany              = errors.New("too many requests")
	ErrInternal             = errors.New("internal")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrAnalysisFailed       = errors.New("document analysis failed")
)

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsEmbeddingUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable)
}
