package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/certgen-backend/internal/archive"
	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/batch"
	"github.com/yungbote/certgen-backend/internal/http/response"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/tabular"
)

type BatchHandler struct {
	log          *logger.Logger
	store        assets.Store
	orchestrator *batch.Orchestrator
	packager     *archive.Packager
	previewRows  int
}

func NewBatchHandler(log *logger.Logger, store assets.Store, orchestrator *batch.Orchestrator, packager *archive.Packager, previewRows int) *BatchHandler {
	if previewRows <= 0 {
		previewRows = 5
	}
	return &BatchHandler{
		log:          log.With("handler", "BatchHandler"),
		store:        store,
		orchestrator: orchestrator,
		packager:     packager,
		previewRows:  previewRows,
	}
}

type generateRequest struct {
	TemplateAssetID string `json:"templateAssetId" binding:"required"`
	TableAssetID    string `json:"tableAssetId" binding:"required"`
	NameColumn      string `json:"nameColumn" binding:"required"`
	EventName       string `json:"eventName" binding:"required"`
	EventDate       string `json:"eventDate" binding:"required"`
	BaseURL         string `json:"baseUrl"`
	GithubUsername  string `json:"githubUsername"`
	GithubRepo      string `json:"githubRepo"`
	// Async accepts the batch and returns immediately; poll the status
	// endpoint and download once the batch is terminal.
	Async bool `json:"async"`
}

func (r generateRequest) resolveBaseURL() (string, error) {
	if u := strings.TrimSpace(r.BaseURL); u != "" {
		return strings.TrimRight(u, "/"), nil
	}
	user := strings.TrimSpace(r.GithubUsername)
	repo := strings.TrimSpace(r.GithubRepo)
	if user == "" || repo == "" {
		return "", fmt.Errorf("either baseUrl or githubUsername+githubRepo is required")
	}
	return fmt.Sprintf("https://%s.github.io/%s", user, repo), nil
}

type certificatePreview struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
}

// Generate runs a whole batch to a terminal state: expand the table, fan out
// compositing and page generation, package the archive, report per-row
// outcomes. Partial success is reported explicitly, never silently dropped.
func (h *BatchHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	baseURL, err := req.resolveBaseURL()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	templateID, err := uuid.Parse(req.TemplateAssetID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", fmt.Errorf("templateAssetId: %w", err))
		return
	}
	tableID, err := uuid.Parse(req.TableAssetID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", fmt.Errorf("tableAssetId: %w", err))
		return
	}

	ctx := c.Request.Context()
	tplAsset, tplBytes, err := h.store.Get(ctx, templateID)
	if err != nil {
		respondMapped(c, err)
		return
	}
	if tplAsset.Kind != assets.KindTemplate {
		response.RespondError(c, http.StatusBadRequest, "validation_error", fmt.Errorf("asset %s is not a template", templateID))
		return
	}
	tblAsset, tblBytes, err := h.store.Get(ctx, tableID)
	if err != nil {
		respondMapped(c, err)
		return
	}
	if tblAsset.Kind != assets.KindTable {
		response.RespondError(c, http.StatusBadRequest, "validation_error", fmt.Errorf("asset %s is not a table", tableID))
		return
	}
	format, err := assets.SniffTableFormat(tblAsset.Filename, tblBytes)
	if err != nil {
		respondMapped(c, err)
		return
	}
	table, err := tabular.Parse(tblBytes, tabular.Format(format))
	if err != nil {
		respondMapped(c, err)
		return
	}

	genReq := batch.GenerateRequest{
		Template:   tplBytes,
		Table:      table,
		NameColumn: req.NameColumn,
		EventName:  req.EventName,
		EventDate:  req.EventDate,
		BaseURL:    baseURL,
	}

	if req.Async {
		id, err := h.orchestrator.Start(genReq)
		if err != nil {
			respondMapped(c, err)
			return
		}
		h.log.Info("batch accepted", "batch_id", id, "rows", table.TotalRows())
		c.JSON(http.StatusAccepted, gin.H{
			"batchId":     id,
			"status":      batch.StatusPending,
			"statusUrl":   fmt.Sprintf("/api/batches/%s", id),
			"downloadUrl": fmt.Sprintf("/api/batches/%s/download", id),
		})
		return
	}

	b, err := h.orchestrator.Generate(ctx, genReq)
	if err != nil {
		respondMapped(c, err)
		return
	}
	snap := b.Snapshot()

	downloadURL := ""
	if snap.Succeeded > 0 {
		if _, err := h.packager.Package(ctx, b); err != nil {
			h.log.Error("packaging failed", "batch_id", b.ID, "error", err)
			respondMapped(c, err)
			return
		}
		downloadURL = fmt.Sprintf("/api/batches/%s/download", b.ID)
	}

	preview := make([]certificatePreview, 0, h.previewRows)
	for _, rec := range snap.Records {
		if len(preview) == h.previewRows {
			break
		}
		preview = append(preview, certificatePreview{ID: rec.ID, Name: rec.Name, Date: rec.EventDate})
	}

	response.RespondOK(c, gin.H{
		"batchId":           b.ID,
		"status":            snap.Status,
		"totalCertificates": snap.Total,
		"generated":         snap.Succeeded,
		"failed":            snap.Failures,
		"message":           fmt.Sprintf("%d of %d certificates generated; %d failed", snap.Succeeded, snap.Total, snap.Failed),
		"certificates":      preview,
		"githubBaseUrl":     baseURL,
		"downloadUrl":       downloadURL,
	})
}

// Status returns a progress snapshot: "at least N of M done".
func (h *BatchHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	b, err := h.orchestrator.Get(id)
	if err != nil {
		respondMapped(c, err)
		return
	}
	snap := b.Snapshot()
	response.RespondOK(c, gin.H{
		"batchId":   snap.BatchID,
		"status":    snap.Status,
		"done":      snap.Done,
		"total":     snap.Total,
		"generated": snap.Succeeded,
		"failed":    snap.Failures,
	})
}

// Download streams the packaged archive for a finished batch. Batches run
// asynchronously are packaged here on first download.
func (h *BatchHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	data, err := h.packager.Fetch(c.Request.Context(), id)
	if errors.Is(err, assets.ErrNotFound) {
		b, berr := h.orchestrator.Get(id)
		if berr != nil {
			respondMapped(c, berr)
			return
		}
		if !b.Snapshot().Status.Terminal() {
			response.RespondError(c, http.StatusConflict, "batch_running", fmt.Errorf("batch %s has not finished", id))
			return
		}
		data, err = h.packager.Package(c.Request.Context(), b)
	}
	if err != nil {
		respondMapped(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificates_%s.zip"`, id))
	c.Data(http.StatusOK, "application/zip", data)
}
