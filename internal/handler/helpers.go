package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/pkg/errcode"
	apperr "github.com/cardwiz/ai-service/internal/pkg/errors"
	"github.com/cardwiz/ai-service/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, apperr.ErrInvalid):
		response.ErrorStatus(c, http.StatusBadRequest, errcode.ErrInvalid, err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		response.ErrorStatus(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, apperr.ErrNotFound):
		response.ErrorStatus(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, apperr.ErrEmbeddingUnavailable):
		response.ErrorStatus(c, http.StatusBadGateway, errcode.ErrEmbeddingSyncFailed, "embedding provider unavailable")
	case errors.Is(err, apperr.ErrMalformedModelOutput), errors.Is(err, apperr.ErrAnalysisFailed):
		response.ErrorStatus(c, http.StatusBadGateway, errcode.ErrDocumentAnalysisFailed, "analysis failed")
	default:
		response.ErrorStatus(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}

func invalid(c *gin.Context, message string) {
	response.ErrorStatus(c, http.StatusBadRequest, errcode.ErrInvalid, message)
}
