package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/certgen-backend/internal/archive"
	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/batch"
	"github.com/yungbote/certgen-backend/internal/http/response"
	"github.com/yungbote/certgen-backend/internal/pkg/apierr"
	"github.com/yungbote/certgen-backend/internal/tabular"
)

// respondMapped translates pipeline sentinels into the error envelope.
func respondMapped(c *gin.Context, err error) {
	ae := classify(err)
	response.RespondError(c, ae.Status, ae.Code, ae.Err)
}

func classify(err error) *apierr.Error {
	switch {
	case errors.Is(err, assets.ErrInvalidAsset):
		return apierr.Validation("invalid_asset", err)
	case errors.Is(err, assets.ErrNotFound), errors.Is(err, batch.ErrNotFound):
		return apierr.NotFound("not_found", err)
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return apierr.Validation("unsupported_format", err)
	case errors.Is(err, tabular.ErrEmptyTable):
		return apierr.New(http.StatusUnprocessableEntity, "empty_table", err)
	case errors.Is(err, batch.ErrInvalidNameColumn):
		return apierr.Validation("validation_error", err)
	case errors.Is(err, archive.ErrEmptyBatch):
		return apierr.New(http.StatusUnprocessableEntity, "empty_batch", err)
	case errors.Is(err, archive.ErrPackagingFailure):
		return apierr.New(http.StatusInternalServerError, "packaging_failure", err)
	default:
		return apierr.From(err, "internal_error")
	}
}
