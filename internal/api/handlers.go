package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/batch"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/capture"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/cron"
	apperrors "github.com/Qualiasolutions/ai-document-processor-sub001/internal/errors"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/export"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/metrics"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/security"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	docs, _ := s.store.CountDocuments()
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"documents": docs,
		"providers": len(s.service.Providers()),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(metrics.Default().Snapshot())
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	// An empty admin password means open self-hosted mode
	if s.config.Auth.AdminPassword != "" && req.Password != s.config.Auth.AdminPassword {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}

	ttl := time.Duration(s.config.Auth.TokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Auth.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString, "expires_in": int(ttl.Seconds())})
}

// ==================== Document Handlers ====================

// handleCreateDocument accepts either a multipart "file" field or a JSON
// body with an image data URL.
func (s *Server) handleCreateDocument(c *fiber.Ctx) error {
	var (
		filename string
		mimeType string
		data     []byte
	)

	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "failed to read upload"})
		}
		defer f.Close()

		buf := make([]byte, file.Size)
		if _, err := io.ReadFull(f, buf); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "failed to read upload"})
		}
		filename = file.Filename
		mimeType = file.Header.Get("Content-Type")
		data = buf
	} else {
		var req struct {
			Filename     string `json:"filename"`
			ImageDataURL string `json:"image_data_url"`
		}
		if err := c.BodyParser(&req); err != nil || req.ImageDataURL == "" {
			return c.Status(400).JSON(fiber.Map{"error": "provide a multipart file or image_data_url"})
		}
		img, err := ai.ParseDataURL(req.ImageDataURL)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		filename = req.Filename
		mimeType = img.MimeType
		data = img.Data
	}

	maxBytes := s.config.Storage.MaxImageMB * 1024 * 1024
	if maxBytes > 0 && len(data) > maxBytes {
		return c.Status(413).JSON(fiber.Map{"error": fmt.Sprintf("image exceeds %dMB limit", s.config.Storage.MaxImageMB)})
	}

	if filename != "" {
		filename = security.SanitizeFilename(filename)
	}

	doc := &store.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		Source:    "api",
	}
	if doc.Filename == "" {
		doc.Filename = doc.ID + extForMime(mimeType)
	}

	uploadDir := s.uploadBase()
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		s.logger.Error("Failed to create upload dir", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to store file"})
	}
	doc.StoragePath = filepath.Join(uploadDir, doc.ID+extForMime(mimeType))
	if err := os.WriteFile(doc.StoragePath, data, 0o644); err != nil {
		s.logger.Error("Failed to write upload", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to store file"})
	}

	if err := s.store.CreateDocument(doc); err != nil {
		os.Remove(doc.StoragePath)
		s.logger.Error("Failed to create document", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create document"})
	}

	return c.Status(201).JSON(doc)
}

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	docs, err := s.store.ListDocuments(limit, offset)
	if err != nil {
		s.logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list documents"})
	}

	total, _ := s.store.CountDocuments()
	return c.JSON(fiber.Map{"documents": docs, "total": total})
}

func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := s.store.GetDocumentWithResults(id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "document not found"})
	}
	return c.JSON(doc)
}

func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := s.store.DeleteDocument(id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "document not found"})
	}
	if doc.StoragePath != "" {
		path, err := security.ValidatePathInBase(doc.StoragePath, s.uploadBase())
		if err != nil {
			s.logger.Warn("Stored path failed validation, not removing", zap.String("path", doc.StoragePath), zap.Error(err))
		} else if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove stored file", zap.String("path", path), zap.Error(err))
		}
	}
	return c.SendStatus(204)
}

// handleProcessDocument runs the stored image through the full pipeline and
// persists the results.
func (s *Server) handleProcessDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := s.store.GetDocument(id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "document not found"})
	}
	if doc.StoragePath == "" {
		return c.Status(409).JSON(fiber.Map{"error": "document has no stored image"})
	}

	path, err := security.ValidatePathInBase(doc.StoragePath, s.uploadBase())
	if err != nil {
		s.logger.Error("Stored path failed validation", zap.String("document_id", id), zap.String("path", doc.StoragePath), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "stored image unavailable"})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("Failed to read stored file", zap.String("document_id", id), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to read stored image"})
	}

	s.store.UpdateDocumentStatus(id, store.StatusProcessing, "")

	img := ai.Image{MimeType: doc.MimeType, Data: data}
	resp, err := s.service.ProcessDocument(c.Context(), ai.ExtractInput{
		ImageDataURL:      img.DataURL(),
		PreferredProvider: c.Query("provider"),
	})
	if err != nil {
		s.store.UpdateDocumentStatus(id, store.StatusFailed, err.Error())
		s.logger.Error("Processing failed", zap.String("document_id", id), zap.Error(err))
		return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
	}

	if _, err := s.store.RecordExtraction(id, &resp.Extract); err != nil {
		s.logger.Error("Failed to record extraction", zap.Error(err))
	}
	if _, err := s.store.RecordAnalysis(id, &resp.Analyze); err != nil {
		s.logger.Error("Failed to record analysis", zap.Error(err))
	}
	s.store.UpdateDocumentStatus(id, store.StatusProcessed, "")

	return c.JSON(resp)
}

func (s *Server) handleExportDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	format := c.Query("format", export.FormatXLSX)

	doc, err := s.store.GetDocumentWithResults(id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "document not found"})
	}

	data, contentType, err := s.exporter.Export(doc, format)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(doc, format)))
	return c.Send(data)
}

// ==================== Pipeline Handlers ====================

func (s *Server) handleExtract(c *fiber.Ctx) error {
	var req ai.ExtractInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.ImageDataURL == "" {
		return c.Status(400).JSON(fiber.Map{"error": "image_data_url is required"})
	}

	resp, err := s.service.ExtractText(c.Context(), req)
	if err != nil {
		return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(resp)
}

func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var req ai.AnalyzeInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Text == "" {
		return c.Status(400).JSON(fiber.Map{"error": "text is required"})
	}

	resp, err := s.service.AnalyzeDocument(c.Context(), req)
	if err != nil {
		return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(resp)
}

// handleCapture screenshots a page and runs the image through the pipeline.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	if s.capturer == nil {
		return c.Status(503).JSON(fiber.Map{"error": "capture is disabled"})
	}

	var req struct {
		URL      string `json:"url"`
		WaitFor  string `json:"wait_for"`
		Viewport bool   `json:"viewport_only"`
		Provider string `json:"provider"`
	}
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return c.Status(400).JSON(fiber.Map{"error": "url is required"})
	}

	img, err := s.capturer.Page(c.Context(), req.URL, capture.Options{
		WaitFor:      req.WaitFor,
		ViewportOnly: req.Viewport,
	})
	if err != nil {
		s.logger.Error("Capture failed", zap.String("url", req.URL), zap.Error(err))
		return c.Status(502).JSON(fiber.Map{"error": fmt.Sprintf("capture failed: %v", err)})
	}

	doc := &store.Document{
		ID:        uuid.NewString(),
		Filename:  captureFilename(req.URL),
		MimeType:  img.MimeType,
		SizeBytes: int64(len(img.Data)),
		Source:    "capture",
		Status:    store.StatusProcessing,
	}
	if err := s.store.CreateDocument(doc); err != nil {
		s.logger.Error("Failed to create document", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create document"})
	}

	resp, err := s.service.ProcessDocument(c.Context(), ai.ExtractInput{
		ImageDataURL:      img.DataURL(),
		PreferredProvider: req.Provider,
	})
	if err != nil {
		s.store.UpdateDocumentStatus(doc.ID, store.StatusFailed, err.Error())
		return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
	}

	s.store.RecordExtraction(doc.ID, &resp.Extract)
	s.store.RecordAnalysis(doc.ID, &resp.Analyze)
	s.store.UpdateDocumentStatus(doc.ID, store.StatusProcessed, "")

	return c.JSON(fiber.Map{"document_id": doc.ID, "result": resp})
}

// ==================== Provider and Form Handlers ====================

// handleListProviders serves the availability snapshot the maintenance job
// refreshes, probing live only when no snapshot exists yet.
func (s *Server) handleListProviders(c *fiber.Ctx) error {
	if payload, err := s.store.GetKV(cron.AvailabilityKey); err == nil {
		var statuses []ai.ProviderStatus
		if json.Unmarshal(payload, &statuses) == nil {
			return c.JSON(fiber.Map{"providers": statuses, "cached": true})
		}
	}

	statuses := s.service.ListProviderAvailability(c.Context())
	return c.JSON(fiber.Map{"providers": statuses, "cached": false})
}

func (s *Server) handleListForms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"forms": s.forms.List()})
}

// ==================== Batch Handlers ====================

func (s *Server) handleCreateBatch(c *fiber.Ctx) error {
	var req struct {
		Items []batch.InputItem `json:"items"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if len(req.Items) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "items is required"})
	}

	for i := range req.Items {
		if req.Items[i].ID == "" {
			req.Items[i].ID = fmt.Sprintf("item-%d", i+1)
		}
	}

	job := &store.BatchJob{TotalItems: len(req.Items)}
	if err := s.store.CreateBatchJob(job); err != nil {
		s.logger.Error("Failed to create batch job", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create batch job"})
	}

	go s.runBatch(job, req.Items)

	return c.Status(202).JSON(fiber.Map{"job_id": job.ID, "total_items": job.TotalItems})
}

func (s *Server) handleListBatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	jobs, err := s.store.ListBatchJobs(limit, offset)
	if err != nil {
		s.logger.Error("Failed to list batch jobs", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list batch jobs"})
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

func (s *Server) handleGetBatch(c *fiber.Ctx) error {
	id := c.Params("id")
	job, err := s.store.GetBatchJob(id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "batch job not found"})
	}
	return c.JSON(job)
}

// runBatch executes a batch job in the background, streaming progress to the
// job row and any websocket watchers.
func (s *Server) runBatch(job *store.BatchJob, items []batch.InputItem) {
	cfg := batch.Config{
		MaxConcurrency:    s.config.Batch.MaxConcurrency,
		ItemTimeout:       time.Duration(s.config.Batch.ItemTimeout) * time.Second,
		RequestsPerMinute: s.config.Batch.RequestsPerMinute,
	}
	proc := batch.NewProcessor(s.service, cfg, s.logger)

	proc.OnItem = func(completed, total int, item batch.OutputItem) {
		job.Processed = completed
		if item.Success {
			job.Succeeded++
		} else {
			job.Failed++
		}
		if err := s.store.UpdateBatchJob(job); err != nil {
			s.logger.Warn("Failed to update batch progress", zap.Error(err))
		}
		s.hub.publish(progressEvent{
			Type:      "item",
			JobID:     job.ID,
			Completed: completed,
			Total:     total,
			Item:      &item,
		})
	}

	now := time.Now()
	job.Status = "running"
	job.StartedAt = &now
	s.store.UpdateBatchJob(job)

	result := proc.Process(context.Background(), items)

	end := time.Now()
	job.Status = "completed"
	if result.Total > 0 && result.Failed == result.Total {
		job.Status = "failed"
	}
	job.Processed = result.Total
	job.Succeeded = result.Success
	job.Failed = result.Failed
	job.CompletedAt = &end
	job.Results = store.ToJSON(result)
	if err := s.store.UpdateBatchJob(job); err != nil {
		s.logger.Error("Failed to finalize batch job", zap.String("job_id", job.ID), zap.Error(err))
	}

	s.hub.publish(progressEvent{
		Type:      "done",
		JobID:     job.ID,
		Completed: result.Total,
		Total:     result.Total,
	})
}

// handleBatchWS streams progress events for one job until it completes or
// the client disconnects.
func (s *Server) handleBatchWS(c *websocket.Conn) {
	defer c.Close()

	metrics.IncrementActiveConnections()
	defer metrics.DecrementActiveConnections()

	jobID := c.Params("id")
	ch := s.hub.subscribe(jobID)
	defer s.hub.unsubscribe(jobID, ch)

	// Current state first so late subscribers see where the job stands
	if job, err := s.store.GetBatchJob(jobID); err == nil {
		c.WriteJSON(fiber.Map{"type": "state", "job": job})
		if job.CompletedAt != nil {
			return
		}
	} else {
		c.WriteJSON(fiber.Map{"type": "error", "error": "batch job not found"})
		return
	}

	// Reader goroutine notices the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-ch:
			if err := c.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "done" {
				return
			}
		}
	}
}

// ==================== Helpers ====================

// statusForError maps pipeline failures to HTTP statuses. Input problems are
// the caller's fault; provider exhaustion is an upstream fault.
func statusForError(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrDocumentTooLarge.Code:
			return 413
		case apperrors.ErrDocumentEmpty.Code, apperrors.ErrUnsupportedFormat.Code:
			return 400
		}
	}

	switch ai.ClassOf(err) {
	case ai.FailureNoUsableContent:
		return 422
	case ai.FailureRateLimited:
		return 429
	case ai.FailurePayloadTooLarge:
		return 413
	default:
		return 502
	}
}

// uploadBase is the directory all stored document images live under.
func (s *Server) uploadBase() string {
	if s.config.Storage.UploadDir != "" {
		return s.config.Storage.UploadDir
	}
	return filepath.Join(s.config.Storage.DataDir, "uploads")
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

func captureFilename(rawURL string) string {
	name := rawURL
	for _, prefix := range []string{"https://", "http://"} {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			name = name[len(prefix):]
		}
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name + ".png"
}
