package controller

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/pkg/serverutils"
	"memcontext-be/internal/relay"
	"memcontext-be/internal/service"
	"memcontext-be/internal/transport"
	"memcontext-be/pkg/memcontext"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
)

type IIngestController interface {
	RegisterRoutes(r fiber.Router)
	IngestStream(ctx *fiber.Ctx) error
	Ingest(ctx *fiber.Ctx) error
	IngestWS(ctx *fiber.Ctx) error
}

type ingestController struct {
	service  service.IIngestService
	sessions serverutils.SessionResolver
	logger   logger.ILogger
}

func NewIngestController(service service.IIngestService, sessions serverutils.SessionResolver, log logger.ILogger) IIngestController {
	return &ingestController{service: service, sessions: sessions, logger: log}
}

func (c *ingestController) RegisterRoutes(r fiber.Router) {
	session := serverutils.SessionMiddleware(c.sessions)

	r.Post("/add_multimodal_memory_stream", session, c.IngestStream)
	r.Post("/add_multimodal_memory", session, c.Ingest)
	r.Get("/ws/ingest", session, c.IngestWS)
}

// ingestFrame renders a relay event in the ingest wire format.
func ingestFrame(ev relay.Event[*memcontext.IngestResult]) interface{} {
	switch ev.Kind {
	case relay.KindHeartbeat:
		return dto.HeartbeatFrame{Heartbeat: true}
	case relay.KindTerminal:
		if !ev.Success {
			return dto.IngestFailedFrame{Done: true, Error: ev.Err}
		}
		frame := dto.IngestDoneFrame{Done: true, Success: true}
		if ev.Result != nil {
			frame.ChunksWritten = ev.Result.ChunksWritten
			frame.FileID = ev.Result.FileID
		}
		return frame
	default:
		return dto.ProgressDTO{Progress: ev.Progress, Message: ev.Message}
	}
}

// relayTo drains job into out. It returns early when the client is gone; the
// ingestion itself keeps running.
func (c *ingestController) relayTo(job *service.IngestJob, out transport.Emitter) {
	err := job.Drain(func(ev relay.Event[*memcontext.IngestResult]) error {
		return out.Emit(ingestFrame(ev))
	})
	if err != nil {
		c.logger.Info("IngestController", "Client left before ingestion finished", map[string]interface{}{
			"job":   job.ID,
			"error": err.Error(),
		})
	}
}

func (c *ingestController) IngestStream(ctx *fiber.Ctx) error {
	var req dto.AddMultimodalMemoryRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	transport.SetSSEHeaders(ctx)
	job, err := c.service.Start(serverutils.HandleFromCtx(ctx), &req)
	if err != nil {
		// Request errors still answer with a single event frame.
		message := apperror.PublicMessage(err)
		ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			_ = transport.NewSSEWriter(w).Emit(dto.ErrorFrame{Error: message})
		}))
		return nil
	}

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		c.relayTo(job, transport.NewSSEWriter(w))
	}))
	return nil
}

const uploadFallbackName = "upload.bin"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps only the base name, replacing anything outside
// [A-Za-z0-9._-] with underscores.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Trim(unsafeFilenameChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return uploadFallbackName
	}
	return base
}

func isMultipart(ctx *fiber.Ctx) bool {
	return strings.HasPrefix(string(ctx.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// bindUpload saves the "file" part into a fresh temp dir and fills req from the
// form fields. The returned cleanup removes the temp dir.
func bindUpload(ctx *fiber.Ctx, req *dto.AddMultimodalMemoryRequest) (func(), error) {
	header, err := ctx.FormFile("file")
	if err != nil {
		return nil, apperror.New(apperror.KindValidation, "File upload is required")
	}

	if raw := ctx.FormValue("converter_kwargs"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ConverterKwargs); err != nil {
			return nil, apperror.New(apperror.KindValidation, "converter_kwargs must be valid JSON")
		}
	}
	req.ConverterType = ctx.FormValue("converter_type")
	req.AgentResponse = ctx.FormValue("agent_response")

	dir, err := os.MkdirTemp("", "memcontext_upload_")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "failed to store upload", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, sanitizeFilename(header.Filename))
	if err := ctx.SaveFile(header, path); err != nil {
		cleanup()
		return nil, apperror.Wrap(apperror.KindInternal, "failed to store upload", err)
	}
	req.FilePath = path
	return cleanup, nil
}

// Ingest accepts a JSON body naming a local file or a multipart upload.
func (c *ingestController) Ingest(ctx *fiber.Ctx) error {
	var req dto.AddMultimodalMemoryRequest
	if isMultipart(ctx) {
		cleanup, err := bindUpload(ctx, &req)
		if err != nil {
			return err
		}
		defer cleanup()
	} else if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Ingest(ctx.UserContext(), serverutils.HandleFromCtx(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

// IngestWS reads one request message, then relays the job's events as messages.
func (c *ingestController) IngestWS(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	handle := serverutils.HandleFromCtx(ctx)
	return websocket.New(func(conn *websocket.Conn) {
		out := transport.NewWSWriter(conn)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req dto.AddMultimodalMemoryRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			_ = out.Emit(dto.ErrorFrame{Error: "invalid request body"})
			return
		}

		job, err := c.service.Start(handle, &req)
		if err != nil {
			_ = out.Emit(dto.ErrorFrame{Error: apperror.PublicMessage(err)})
			return
		}
		c.relayTo(job, out)
	})(ctx)
}
