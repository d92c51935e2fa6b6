package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harshraj78/legal-check-ai/config"
	"github.com/harshraj78/legal-check-ai/middleware"
	"github.com/harshraj78/legal-check-ai/model"
	"github.com/harshraj78/legal-check-ai/pkg/logger"
	"github.com/harshraj78/legal-check-ai/service"
)

// multipartOverhead is allowed on top of upload.max_bytes for form framing.
const multipartOverhead = 1 << 20

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Submitter schedules a contract for background processing.
type Submitter interface {
	Submit(id string) error
}

type ContractHandler struct {
	store      *service.ContractStore
	reader     *service.CachedReader
	blobs      service.BlobStore
	dispatcher Submitter
	upload     config.UploadConfig
}

func NewContractHandler(store *service.ContractStore, reader *service.CachedReader, blobs service.BlobStore, dispatcher Submitter, upload config.UploadConfig) *ContractHandler {
	return &ContractHandler{
		store:      store,
		reader:     reader,
		blobs:      blobs,
		dispatcher: dispatcher,
		upload:     upload,
	}
}

// Upload stores the document, creates a pending contract and schedules it.
// It returns as soon as the work is queued.
func (h *ContractHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	if h.upload.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxBytes+multipartOverhead)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": service.ErrFileTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !h.upload.IsAllowedExtension(ext) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("%s: allowed extensions are %s", service.ErrInvalidFileType, strings.Join(h.upload.AllowedExtensions, ", ")),
		})
		return
	}
	if h.upload.MaxBytes > 0 && header.Size > h.upload.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": service.ErrFileTooLarge.Error()})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	contractID := uuid.New().String()
	contract := &model.Contract{
		ID:          contractID,
		Filename:    filepath.Base(header.Filename),
		BlobKey:     service.BlobKey(contractID, header.Filename),
		ContentType: service.ContentTypeFor(header.Filename),
		SizeBytes:   int64(len(data)),
		Status:      model.StatusPending,
	}
	ctx = logger.WithContractID(ctx, contractID)

	if err := h.store.Create(ctx, contract); err != nil {
		logger.Error(ctx, "failed to create contract", "error", err)
		middleware.InternalError(c, "Failed to create contract")
		return
	}

	if err := h.blobs.Save(ctx, contract.BlobKey, data, contract.ContentType); err != nil {
		logger.Error(ctx, "failed to store document", "error", err)
		h.failUpload(c, contractID, "blob: "+err.Error())
		middleware.InternalError(c, "Failed to store file")
		return
	}

	if err := h.dispatcher.Submit(contractID); err != nil {
		logger.Error(ctx, "failed to schedule contract", "error", err)
		h.failUpload(c, contractID, "dispatch: "+err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":      "Server is shutting down",
			"request_id": middleware.GetRequestID(c),
		})
		return
	}

	logger.Info(ctx, "contract uploaded", "filename", contract.Filename, "size_bytes", contract.SizeBytes)

	c.JSON(http.StatusAccepted, gin.H{
		"id":       contractID,
		"filename": contract.Filename,
		"status":   model.StatusPending,
		"message":  "Analysis started in background",
	})
}

func (h *ContractHandler) failUpload(c *gin.Context, id, reason string) {
	if err := h.store.MarkFailed(c.Request.Context(), id, reason); err != nil {
		logger.Error(c.Request.Context(), "failed to mark upload failed", "contract_id", id, "error", err)
	}
}

// Get returns a contract with its analysis, when present. Raw text is only
// included with ?include_text=true.
func (h *ContractHandler) Get(c *gin.Context) {
	contract, ok := h.load(c)
	if !ok {
		return
	}

	view := newContractView(contract)
	if include, _ := strconv.ParseBool(c.Query("include_text")); include {
		view.RawText = contract.RawText
	}
	c.JSON(http.StatusOK, view)
}

// GetStatus returns the processing status, plus the score and summary once
// the analysis exists.
func (h *ContractHandler) GetStatus(c *gin.Context) {
	contract, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newStatusView(contract))
}

// List returns contracts newest first, without text or analysis.
func (h *ContractHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxListLimit)

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	contracts, total, err := h.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list contracts", "error", err)
		middleware.InternalError(c, "Failed to list contracts")
		return
	}

	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":         contract.ID,
			"filename":   contract.Filename,
			"status":     contract.Status,
			"created_at": contract.CreatedAt.Format(time.RFC3339),
			"updated_at": contract.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"contracts": result,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// load resolves :id, writing the error response itself when it fails.
func (h *ContractHandler) load(c *gin.Context) (*model.Contract, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil, false
	}

	contract, err := h.reader.Get(c.Request.Context(), id)
	if errors.Is(err, service.ErrContractNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil, false
	}
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load contract", "contract_id", id, "error", err)
		middleware.InternalError(c, "Failed to load contract")
		return nil, false
	}
	return contract, true
}


func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
