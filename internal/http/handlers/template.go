package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/http/response"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
)

type TemplateHandler struct {
	log   *logger.Logger
	store assets.Store
}

func NewTemplateHandler(log *logger.Logger, store assets.Store) *TemplateHandler {
	return &TemplateHandler{
		log:   log.With("handler", "TemplateHandler"),
		store: store,
	}
}

// UploadTemplate accepts a multipart PNG/JPEG certificate template and
// returns its asset reference with decoded dimensions.
func (h *TemplateHandler) UploadTemplate(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	a, err := h.store.Put(c.Request.Context(), assets.KindTemplate, fh.Filename, data)
	if err != nil {
		h.log.Warn("template upload rejected", "filename", fh.Filename, "error", err)
		respondMapped(c, err)
		return
	}
	h.log.Info("template uploaded", "asset_id", a.ID, "filename", a.Filename, "dimensions", []int{a.Width, a.Height})

	response.RespondOK(c, gin.H{
		"assetId":  a.ID,
		"filename": a.Filename,
		"width":    a.Width,
		"height":   a.Height,
	})
}
