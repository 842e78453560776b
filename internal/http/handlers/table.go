package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/http/response"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/tabular"
)

type TableHandler struct {
	log         *logger.Logger
	store       assets.Store
	previewRows int
}

func NewTableHandler(log *logger.Logger, store assets.Store, previewRows int) *TableHandler {
	if previewRows <= 0 {
		previewRows = 5
	}
	return &TableHandler{
		log:         log.With("handler", "TableHandler"),
		store:       store,
		previewRows: previewRows,
	}
}

// UploadTable accepts a multipart XLSX/XLS/CSV recipient list, stores it,
// and returns columns, a bounded preview and the data-row count.
func (h *TableHandler) UploadTable(c *gin.Context) {
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

	a, err := h.store.Put(c.Request.Context(), assets.KindTable, fh.Filename, data)
	if err != nil {
		h.log.Warn("table upload rejected", "filename", fh.Filename, "error", err)
		respondMapped(c, err)
		return
	}

	format, err := assets.SniffTableFormat(a.Filename, data)
	if err != nil {
		respondMapped(c, err)
		return
	}
	table, err := tabular.Parse(data, tabular.Format(format))
	if err != nil {
		respondMapped(c, err)
		return
	}
	h.log.Info("table uploaded", "asset_id", a.ID, "filename", a.Filename, "rows", table.TotalRows())

	response.RespondOK(c, gin.H{
		"assetId":   a.ID,
		"filename":  a.Filename,
		"columns":   table.Columns,
		"preview":   table.Preview(h.previewRows),
		"totalRows": table.TotalRows(),
	})
}
