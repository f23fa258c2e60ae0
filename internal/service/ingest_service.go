package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/relay"
	"memcontext-be/pkg/events"
	"memcontext-be/pkg/memcontext"
)

const (
	DefaultConverterType = "text"
	defaultWorkingDir    = "./videorag-workdir"
)

// Converter settings that must never reach the converter or its logs.
var secretKwargs = []string{"deepseek_key", "siliconflow_key"}

var (
	ErrFilePathRequired = apperror.New(apperror.KindValidation, "file_path is required")
	ErrURLUnsupported   = apperror.New(apperror.KindValidation, "only local file sources (file_path) are supported")
)

// EventPublisher is satisfied by *nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IngestJob = relay.Job[*memcontext.IngestResult]

type IIngestService interface {
	// Start validates req and launches the ingestion. The returned job yields
	// progress, heartbeats and exactly one terminal event.
	Start(handle memcontext.Handle, req *dto.AddMultimodalMemoryRequest) (*IngestJob, error)
	// Ingest runs the ingestion to completion and collects its progress.
	Ingest(ctx context.Context, handle memcontext.Handle, req *dto.AddMultimodalMemoryRequest) (*dto.AddMultimodalMemoryResponse, error)
}

type ingestService struct {
	relay            *relay.Relay
	launcher         relay.Launcher
	publisher        EventPublisher
	defaultConverter string
	logger           logger.ILogger
}

// NewIngestService builds the ingest service. publisher may be nil. Completion
// events are published on launcher so a slow broker never holds back the
// terminal event.
func NewIngestService(r *relay.Relay, launcher relay.Launcher, publisher EventPublisher, defaultConverter string, log logger.ILogger) IIngestService {
	if defaultConverter == "" {
		defaultConverter = DefaultConverterType
	}
	if launcher == nil {
		launcher = relay.Goroutine
	}
	return &ingestService{
		relay:            r,
		launcher:         launcher,
		publisher:        publisher,
		defaultConverter: strings.ToLower(defaultConverter),
		logger:           log,
	}
}

func (s *ingestService) prepare(req *dto.AddMultimodalMemoryRequest) (memcontext.IngestRequest, error) {
	if strings.TrimSpace(req.FilePath) == "" {
		if strings.TrimSpace(req.URL) != "" {
			return memcontext.IngestRequest{}, ErrURLUnsupported
		}
		return memcontext.IngestRequest{}, ErrFilePathRequired
	}

	converterType := strings.ToLower(strings.TrimSpace(req.ConverterType))
	if converterType == "" {
		converterType = s.defaultConverter
	}

	settings := make(map[string]interface{}, len(req.ConverterKwargs)+1)
	for k, v := range req.ConverterKwargs {
		settings[k] = v
	}
	for _, k := range secretKwargs {
		delete(settings, k)
	}
	if _, ok := settings["working_dir"]; !ok {
		settings["working_dir"] = defaultWorkingDir
	}

	return memcontext.IngestRequest{
		Source:          req.FilePath,
		ConverterType:   converterType,
		AgentResponse:   req.AgentResponse,
		ConverterKwargs: settings,
	}, nil
}

func (s *ingestService) Start(handle memcontext.Handle, req *dto.AddMultimodalMemoryRequest) (*IngestJob, error) {
	ireq, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	userID := handle.UserID()
	job := relay.Start(s.relay, func(report relay.Reporter) (*memcontext.IngestResult, error) {
		// Not tied to the request: ingestion finishes even if the client leaves.
		res, err := handle.AddMultimodal(context.Background(), ireq, memcontext.ProgressFunc(report))
		s.publishAsync(userID, ireq, res, err)
		return res, err
	})

	s.logger.Info("IngestService", "Ingestion started", map[string]interface{}{
		"job":            job.ID,
		"user_id":        userID,
		"converter_type": ireq.ConverterType,
		"source":         filepath.Base(ireq.Source),
	})
	return job, nil
}

func (s *ingestService) Ingest(ctx context.Context, handle memcontext.Handle, req *dto.AddMultimodalMemoryRequest) (*dto.AddMultimodalMemoryResponse, error) {
	job, err := s.Start(handle, req)
	if err != nil {
		return nil, err
	}

	progress := []dto.ProgressDTO{}
	var terminal relay.Event[*memcontext.IngestResult]
	err = job.Drain(func(ev relay.Event[*memcontext.IngestResult]) error {
		switch ev.Kind {
		case relay.KindProgress:
			progress = append(progress, dto.ProgressDTO{Progress: ev.Progress, Message: ev.Message})
		case relay.KindTerminal:
			terminal = ev
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	if !terminal.Success {
		_, jobErr := job.Wait()
		var unsupported *memcontext.ErrUnsupportedConverter
		if errors.As(jobErr, &unsupported) {
			return nil, apperror.New(apperror.KindValidation, unsupported.Error())
		}
		return nil, apperror.New(apperror.KindInternal, fmt.Sprintf("add_multimodal_memory failed: %s", terminal.Err))
	}

	res := terminal.Result
	timestamps := res.Timestamps
	if timestamps == nil {
		timestamps = []string{}
	}
	return &dto.AddMultimodalMemoryResponse{
		Success:         true,
		IngestedRounds:  res.ChunksWritten,
		FileID:          res.FileID,
		Timestamps:      timestamps,
		Progress:        progress,
		StoragePath:     res.StoragePath,
		StorageBasePath: res.StorageBasePath,
	}, nil
}

func (s *ingestService) publishAsync(userID string, req memcontext.IngestRequest, res *memcontext.IngestResult, ingestErr error) {
	if s.publisher == nil {
		return
	}
	err := s.launcher.Go(func() {
		s.publish(context.Background(), userID, req, res, ingestErr)
	})
	if err != nil {
		s.logger.Warn("IngestService", "Dropped ingest event", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func (s *ingestService) publish(ctx context.Context, userID string, req memcontext.IngestRequest, res *memcontext.IngestResult, ingestErr error) {
	if s.publisher == nil {
		return
	}

	evt := events.BaseEvent{
		Data: map[string]interface{}{
			"user_id":        userID,
			"source":         filepath.Base(req.Source),
			"converter_type": req.ConverterType,
		},
		OccurredAt: time.Now(),
	}
	if ingestErr != nil {
		evt.Type = events.IngestFailed
		evt.Data["error"] = ingestErr.Error()
	} else {
		evt.Type = events.IngestCompleted
		evt.Data["file_id"] = res.FileID
		evt.Data["chunks_written"] = res.ChunksWritten
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("IngestService", "Failed to publish ingest event", map[string]interface{}{
			"type":  evt.Type,
			"error": err.Error(),
		})
	}
}
