package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/fyerfyer/pdf-indexer/api/middleware"
	"github.com/fyerfyer/pdf-indexer/internal/document"
	"github.com/fyerfyer/pdf-indexer/internal/embedding"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/services"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
	"github.com/go-playground/validator/v10"
)

// toAppError 将领域错误映射为HTTP错误
func toAppError(err error) middleware.AppError {
	var (
		openErr  *document.DocumentOpenError
		storeErr *vectordb.StoreUnavailableError
		embErr   embedding.EmbeddingError
	)

	switch {
	case errors.As(err, &openErr):
		return middleware.NewValidationError("invalid PDF document", openErr.Error())
	case errors.Is(err, services.ErrEmptyQuery):
		return middleware.NewValidationError("query cannot be empty")
	case errors.Is(err, models.ErrRunNotFound):
		return middleware.NewNotFoundError("ingest run not found")
	case errors.As(err, &storeErr):
		return middleware.NewUnavailableError("vector store unavailable", storeErr.Error())
	case errors.As(err, &embErr):
		return middleware.NewUnavailableError("embedding service unavailable", embErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return middleware.NewUnavailableError("request timed out")
	default:
		return middleware.NewInternalError("internal server error", err.Error())
	}
}

// bindingError 将参数校验错误转换为可读的验证错误
func bindingError(err error) middleware.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return middleware.NewValidationError("invalid request parameters", err.Error())
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" failed on "+fe.Tag())
	}
	return middleware.NewValidationError("invalid request parameters", fields...)
}
