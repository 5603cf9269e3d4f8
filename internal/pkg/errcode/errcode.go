package errcode

const (
	ErrUnknown = 20000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrEmbeddingSyncFailed
	ErrRecommendationFailed
	ErrStatementAnalysisFailed
	ErrDocumentAnalysisFailed
)
