package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/gateway"
	"github.com/nulzo/llm-proxy/internal/server/validator"
	"github.com/nulzo/llm-proxy/pkg/api"
	"go.uber.org/zap"
)

// Dispatcher is the part of gateway.Dispatcher the HTTP layer uses.
type Dispatcher interface {
	Chat(ctx context.Context, req *api.ChatRequest, creds gateway.CredentialSource) (*api.ChatResponse, error)
	Stream(ctx context.Context, req *api.ChatRequest, creds gateway.CredentialSource) (<-chan api.StreamChunk, error)
}

type ChatHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewChatHandler(dispatcher Dispatcher, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	req := api.NewChatRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	h.logger.Info("Chat completion requested",
		zap.String("model", req.Model),
		zap.String("provider", req.Provider.String()),
		zap.Bool("stream", req.Stream),
	)

	creds := gateway.HeaderCredentials(c.Request.Header)

	if req.Stream {
		h.handleStream(c, &req, creds)
		return
	}

	resp, err := h.dispatcher.Chat(c.Request.Context(), &req, creds)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type streamError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (h *ChatHandler) handleStream(c *gin.Context, req *api.ChatRequest, creds gateway.CredentialSource) {
	// errors up to here still get a proper status code
	chunks, err := h.dispatcher.Stream(c.Request.Context(), req, creds)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			return false
		}

		if chunk.Err != nil {
			h.logger.Warn("Stream aborted by upstream",
				zap.String("provider", req.Provider.String()),
				zap.String("model", req.Model),
				zap.Error(chunk.Err),
			)
			var payload streamError
			payload.Error.Message = chunk.Err.Error()
			payload.Error.Type = "upstream_error"
			data, _ := json.Marshal(payload)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			return false
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk.Data); err != nil {
			return false
		}
		return !chunk.IsDone()
	})
}
