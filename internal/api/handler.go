package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/db"
	"race-timing-ingest/internal/format"
	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
	"race-timing-ingest/internal/parse"
	"race-timing-ingest/internal/queue"
	"race-timing-ingest/internal/resolve"
	"race-timing-ingest/internal/roster"
	"race-timing-ingest/internal/storage"
	apperrors "race-timing-ingest/pkg/errors"
)

type Handler struct {
	repo     db.Repository
	producer *queue.Producer
	store    storage.Storage
	roster   roster.RosterSource
	parser   *parse.Parser
	cfg      *config.Config
	log      zerolog.Logger
}

func NewHandler(
	repo db.Repository,
	producer *queue.Producer,
	store storage.Storage,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:     repo,
		producer: producer,
		store:    store,
		roster:   roster.NewExcelRoster(),
		parser:   parse.NewParser(),
		cfg:      cfg,
		log:      logger.For("api"),
	}
}

type importForm struct {
	RaceID         int64
	DefaultDate    string
	TimingPointID  *int64
	RaceDistanceID *int64
	Simple         *model.SimpleFormat
	Content        []byte
}

func (h *Handler) bindImportForm(c *gin.Context) (*importForm, error) {
	raceID, err := strconv.ParseInt(c.PostForm("race_id"), 10, 64)
	if err != nil || raceID <= 0 {
		return nil, fmt.Errorf("race_id is required")
	}

	form := &importForm{
		RaceID:      raceID,
		DefaultDate: c.PostForm("default_date"),
	}

	if v := c.PostForm("timing_point_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timing_point_id")
		}
		form.TimingPointID = &id
	}
	if v := c.PostForm("race_distance_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid race_distance_id")
		}
		form.RaceDistanceID = &id
	}
	if v := c.PostForm("simple_format"); v != "" {
		var simple model.SimpleFormat
		if err := json.Unmarshal([]byte(v), &simple); err != nil {
			return nil, fmt.Errorf("invalid simple_format: %v", err)
		}
		if err := simple.Validate(); err != nil {
			return nil, fmt.Errorf("invalid simple_format: %v", err)
		}
		form.Simple = &simple
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload")
	}
	defer file.Close()
	form.Content, err = io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload")
	}

	return form, nil
}

type previewLine struct {
	LineNumber   int    `json:"line_number"`
	ChipCode     string `json:"chip_code,omitempty"`
	ResolvedBib  int    `json:"resolved_bib,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	HasError     bool   `json:"has_error"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PreviewImport parses and resolves an uploaded reader file without writing
// anything, so the operator can review per-line resolution status and fix
// the roster before committing.
func (h *Handler) PreviewImport(c *gin.Context) {
	form, err := h.bindImportForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resolved, detected, err := h.parseAndResolve(c, form)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	lines := make([]previewLine, len(resolved))
	unresolved := 0
	for i, line := range resolved {
		lines[i] = previewLine{
			LineNumber:   line.LineNumber,
			ChipCode:     line.ChipCode,
			ResolvedBib:  line.ResolvedBib,
			HasError:     line.HasError,
			ErrorMessage: line.ErrorMessage,
		}
		if !line.Timestamp.IsZero() {
			lines[i].Timestamp = line.Timestamp.String()
		}
		if line.HasError || line.ResolvedBib <= 0 {
			unresolved++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"detected_format": detected,
		"total":           len(lines),
		"unresolved":      unresolved,
		"lines":           lines,
	})
}

func (h *Handler) parseAndResolve(c *gin.Context, form *importForm) ([]model.ParsedLine, *model.DetectedFormat, error) {
	var defaultDate time.Time
	if form.DefaultDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", form.DefaultDate, time.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid default_date %q", form.DefaultDate)
		}
		defaultDate = parsed
	}

	lines := parse.SplitLines(string(form.Content))

	var parsed []model.ParsedLine
	var detected *model.DetectedFormat
	if form.Simple != nil {
		parsed = h.parser.ParseSimple(lines, *form.Simple, defaultDate)
	} else {
		sample := ""
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				sample = line
				break
			}
		}
		df, err := format.Detect(sample)
		if err != nil {
			return nil, nil, fmt.Errorf("format not detected, supply simple_format")
		}
		detected = &df
		parsed = h.parser.ParseDetected(lines, df, defaultDate)
	}

	index, err := h.repo.ChipIndex(c.Request.Context(), form.RaceID)
	if err != nil {
		h.log.Error().Err(err).Int64("race_id", form.RaceID).Msg("Failed to load chip index")
		return nil, nil, fmt.Errorf("failed to load chip index")
	}

	defaults := resolve.Defaults{
		RaceDistanceID: form.RaceDistanceID,
		TimingPointID:  form.TimingPointID,
	}
	return resolve.NewResolver(index).Resolve(parsed, defaults), detected, nil
}

// CommitImport stores the uploaded file and queues an import run.
func (h *Handler) CommitImport(c *gin.Context) {
	form, err := h.bindImportForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()
	fileKey := storage.TimingFileKey(form.RaceID, runID)

	if err := h.store.Upload(c.Request.Context(), fileKey, bytes.NewReader(form.Content)); err != nil {
		h.log.Error().Err(err).Str("file_key", fileKey).Msg("Failed to store timing file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store timing file"})
		return
	}

	run := &model.ImportRun{
		ID:      runID,
		RaceID:  form.RaceID,
		FileKey: fileKey,
		Status:  model.ImportRunUploaded,
	}
	if err := h.repo.CreateImportRun(c.Request.Context(), run); err != nil {
		h.log.Error().Err(err).Msg("Failed to create import run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create import run"})
		return
	}

	job := model.ImportJob{
		RunID:          runID,
		RaceID:         form.RaceID,
		FileKey:        fileKey,
		DefaultDate:    form.DefaultDate,
		TimingPointID:  form.TimingPointID,
		RaceDistanceID: form.RaceDistanceID,
		Simple:         form.Simple,
	}
	if err := h.producer.EnqueueImportJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().Str("run_id", runID).Int64("race_id", form.RaceID).Msg("Import run queued")
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (h *Handler) GetImportRun(c *gin.Context) {
	run, err := h.repo.GetImportRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		if err == apperrors.ErrImportRunNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import run not found"})
			return
		}
		h.log.Error().Err(err).Msg("Failed to load import run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// CreateReading is the single write-through endpoint capture devices hit
// while connected.
func (h *Handler) CreateReading(c *gin.Context) {
	var req model.ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.RaceID <= 0 || req.Reading.BibNumber <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "race_id and a positive bib_number are required"})
		return
	}

	id, err := h.repo.InsertReading(c.Request.Context(), req.RaceID, req.Reading)
	if err != nil {
		if apperrors.IsDuplicate(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Reading already recorded"})
			return
		}
		h.log.Error().Err(err).Msg("Failed to insert reading")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record reading"})
		return
	}

	c.JSON(http.StatusCreated, model.ReadingResponse{ID: id})
}

// CreateStatusEvent records a single DNF/DNS/DSQ/withdrawn event.
func (h *Handler) CreateStatusEvent(c *gin.Context) {
	var req model.ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.RaceID <= 0 || req.Reading.BibNumber <= 0 || !req.Reading.IsStatusEvent() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "race_id, bib_number and status_code are required"})
		return
	}

	id, err := h.repo.InsertReading(c.Request.Context(), req.RaceID, req.Reading)
	if err != nil {
		if apperrors.IsDuplicate(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Status event already recorded"})
			return
		}
		h.log.Error().Err(err).Msg("Failed to insert status event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record status event"})
		return
	}

	c.JSON(http.StatusCreated, model.ReadingResponse{ID: id})
}

// BulkReadings applies a device's flushed reading queue in one call.
// Readings carrying a server id overwrite rather than duplicate.
func (h *Handler) BulkReadings(c *gin.Context) {
	h.bulkApply(c, false)
}

// BulkStatusEvents is the status-event counterpart; the two queues are
// flushed separately and never mixed.
func (h *Handler) BulkStatusEvents(c *gin.Context) {
	h.bulkApply(c, true)
}

func (h *Handler) bulkApply(c *gin.Context, statusEvents bool) {
	var batch model.ReadingBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if batch.RaceID <= 0 || len(batch.Readings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "race_id and a non-empty readings list are required"})
		return
	}

	for _, reading := range batch.Readings {
		if reading.IsStatusEvent() != statusEvents {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timing readings and status events must be synced separately"})
			return
		}
	}

	applied, err := h.repo.SyncReadings(c.Request.Context(), batch.RaceID, batch.Readings)
	if err != nil {
		h.log.Error().Err(err).Int("batch_size", len(batch.Readings)).Msg("Failed to apply synced batch")
		c.JSON(http.StatusInternalServerError, model.BatchResponse{Success: false, Message: "Failed to apply batch"})
		return
	}

	c.JSON(http.StatusOK, model.BatchResponse{Success: true, Inserted: applied})
}

// UploadRoster ingests a chip-assignment workbook into the race's chip index.
func (h *Handler) UploadRoster(c *gin.Context) {
	raceID, err := strconv.ParseInt(c.PostForm("race_id"), 10, 64)
	if err != nil || raceID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "race_id is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}

	entries, err := h.roster.Parse(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := h.roster.Validate(c.Request.Context(), entries); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.UpsertChipAssignments(c.Request.Context(), raceID, entries); err != nil {
		h.log.Error().Err(err).Int64("race_id", raceID).Msg("Failed to upsert chip assignments")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store chip assignments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": len(entries)})
}

// GetChipIndex serves the participant directory snapshot field devices pull
// at session start.
func (h *Handler) GetChipIndex(c *gin.Context) {
	raceID, err := strconv.ParseInt(c.Query("race_id"), 10, 64)
	if err != nil || raceID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "race_id is required"})
		return
	}

	entries, err := h.repo.ChipIndex(c.Request.Context(), raceID)
	if err != nil {
		h.log.Error().Err(err).Int64("race_id", raceID).Msg("Failed to load chip index")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if entries == nil {
		entries = []model.ChipIndexEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

type reimportRequest struct {
	RaceID int64  `json:"race_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// TriggerReimport queues a geofence reimport of the given local-time window.
func (h *Handler) TriggerReimport(c *gin.Context) {
	var req reimportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.RaceID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "race_id is required"})
		return
	}

	const layout = "2006-01-02 15:04:05"
	start, err := time.ParseInLocation(layout, req.Start, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window start"})
		return
	}
	end, err := time.ParseInLocation(layout, req.End, time.Local)
	if err != nil || end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window end"})
		return
	}

	job := model.ReimportJob{RaceID: req.RaceID, Start: req.Start, End: req.End}
	if err := h.producer.EnqueueReimportJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue reimport job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue reimport job"})
		return
	}

	h.log.Info().Int64("race_id", req.RaceID).Str("start", req.Start).Str("end", req.End).Msg("Reimport job enqueued")
	c.JSON(http.StatusAccepted, gin.H{"message": "Reimport job queued", "job": job})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
