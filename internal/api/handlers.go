package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gymchat/internal/models"
	"gymchat/internal/service/ai"
	"gymchat/internal/service/chat"
)

const (
	// MissingKeyReply is returned for every chat request while no AI
	// credential is configured.
	MissingKeyReply = "Error: Gemini API Key is missing. Please check your .env file."

	// UnavailableReply is returned while a configured AI backend could not
	// be initialized.
	UnavailableReply = "Error: the AI service failed to start. Please check the server logs."

	emptyRequestReply   = "Please type a message or attach a file."
	sessionBusyReply    = "The trainer is still answering earlier messages, please retry in a moment."
	tooLargeReply       = "Upload too large."
	fileErrorPrefix     = "Error processing files: "
	inferenceErrorFmt   = "I encountered an error processing your request with %s: "
	defaultMaxUpload    = 32 << 20
	multipartMemory     = 8 << 20
	requestIDHeader     = "X-Request-ID"
	healthcheckDeadline = 2 * time.Second
)

// ChatService runs one chat request through the pipeline.
type ChatService interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Result, error)
}

// HistoryStore exposes the conversation transcripts.
type HistoryStore interface {
	History(ctx context.Context, sessionID string) (*models.SessionInfo, bool)
	Reset(ctx context.Context, sessionID string) error
}

type Options struct {
	StaticDir      string
	MaxUploadBytes int64
	// ProviderLabel names the AI provider in user-facing error replies.
	ProviderLabel string
	AIEnabled     bool
	// DBPing reports database health on /healthz when set.
	DBPing func(ctx context.Context) error
}

// Handler wires HTTP routes to the chat pipeline.
type Handler struct {
	chat    ChatService
	history HistoryStore
	opts    Options
}

// NewHandler constructs a Handler instance.
func NewHandler(chatService ChatService, history HistoryStore, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.ProviderLabel == "" {
		opts.ProviderLabel = "Gemini"
	}
	if history == nil {
		history = ai.DisabledSession{}
	}
	return &Handler{chat: chatService, history: history, opts: opts}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if h.opts.StaticDir != "" {
		router.Static("/static", h.opts.StaticDir)
		router.GET("/", h.index)
	}
	router.GET("/healthz", h.healthz)
	chatRoutes := router.Group("/chat")
	chatRoutes.POST("", h.postChat)
	chatRoutes.GET("/history", h.getHistory)
	chatRoutes.DELETE("/history", h.resetHistory)
}

func (h *Handler) index(c *gin.Context) {
	page := filepath.Join(h.opts.StaticDir, "index.html")
	if _, err := os.Stat(page); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "index page not found"})
		return
	}
	c.File(page)
}

func (h *Handler) healthz(c *gin.Context) {
	body := gin.H{"status": "ok", "ai_enabled": h.opts.AIEnabled}
	if h.opts.DBPing != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthcheckDeadline)
		defer cancel()
		if err := h.opts.DBPing(ctx); err != nil {
			body["database"] = "unavailable"
		} else {
			body["database"] = "ok"
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) postChat(c *gin.Context) {
	reqID := uuid.NewString()
	c.Header(requestIDHeader, reqID)

	if c.Request.ContentLength > h.opts.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"response": tooLargeReply})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"response": tooLargeReply})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"response": "invalid form: " + err.Error()})
		return
	}
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}

	req := chat.Request{
		ID:          reqID,
		SessionID:   strings.TrimSpace(c.PostForm("session_id")),
		Message:     c.PostForm("message"),
		Attachments: formAttachments(c.Request.MultipartForm),
	}
	res, err := h.chat.Handle(c.Request.Context(), req)
	files := []models.FileOutcome{}
	if res != nil && res.Files != nil {
		files = res.Files
	}
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"response": res.Reply, "files": files})
		return
	}

	status, reply := h.errorReply(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[chat %s] request failed: %v", reqID, err)
	}
	c.JSON(status, gin.H{"response": reply, "files": files})
}

// errorReply maps pipeline errors to a status and the user-facing reply.
func (h *Handler) errorReply(err error) (int, string) {
	switch {
	case errors.Is(err, ai.ErrAIDisabled):
		return http.StatusOK, MissingKeyReply
	case errors.Is(err, ai.ErrAIUnavailable):
		return http.StatusServiceUnavailable, UnavailableReply
	case errors.Is(err, chat.ErrEmptyRequest):
		return http.StatusBadRequest, emptyRequestReply
	case errors.Is(err, ai.ErrSessionBusy):
		return http.StatusTooManyRequests, sessionBusyReply
	case errors.Is(err, chat.ErrFileProcessing):
		return http.StatusInternalServerError, fileErrorPrefix + causeOf(err, chat.ErrFileProcessing)
	default:
		return http.StatusInternalServerError,
			fmt.Sprintf(inferenceErrorFmt, h.opts.ProviderLabel) + causeOf(err, chat.ErrInference)
	}
}

// causeOf drops the sentinel prefix so replies carry only the underlying description.
func causeOf(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func formAttachments(form *multipart.Form) []chat.Attachment {
	if form == nil {
		return nil
	}
	headers := form.File["files"]
	atts := make([]chat.Attachment, 0, len(headers))
	for _, fh := range headers {
		atts = append(atts, chat.Attachment{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return atts
}

func (h *Handler) getHistory(c *gin.Context) {
	sessionID := c.DefaultQuery("session_id", models.DefaultSessionID)
	info, ok := h.history.History(c.Request.Context(), sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) resetHistory(c *gin.Context) {
	sessionID := c.DefaultQuery("session_id", models.DefaultSessionID)
	if err := h.history.Reset(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, ai.ErrSessionBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "session busy, please retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
