package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/RichardoC/sentichat/internal/chat"
	"github.com/RichardoC/sentichat/internal/llm"
	"github.com/RichardoC/sentichat/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	chat   *chat.Service
	logger *zap.Logger
}

func NewHandler(chatService *chat.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chat:   chatService,
		logger: logger.Named("api"),
	}
}

type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type ChatResponse struct {
	Response           string            `json:"response"`
	Sentiment          *models.Sentiment `json:"sentiment"`
	SentimentScore     *float64          `json:"sentimentScore"`
	Explanation        string            `json:"explanation"`
	SentimentAvailable bool              `json:"sentimentAvailable"`
	ReplyFallback      bool              `json:"replyFallback"`
}

type NewConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

type ConversationResponse struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"createdAt"`
	OverallSentiment *models.Sentiment `json:"overallSentiment"`
	OverallScore     *float64          `json:"overallScore"`
	Messages         []models.Message  `json:"messages"`
}

type AnalysisResponse struct {
	ConversationID   string           `json:"conversationId"`
	OverallSentiment models.Sentiment `json:"overallSentiment"`
	OverallScore     float64          `json:"overallScore"`
	Summary          string           `json:"summary"`
	MessageCount     int              `json:"messageCount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) NewConversation(c *gin.Context) {
	conv, err := h.chat.StartConversation(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewConversationResponse{ConversationID: conv.ID})
}

func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.chat.HandleUserMessage(c.Request.Context(), req.ConversationID, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := ChatResponse{
		Response:      res.Reply.Content,
		ReplyFallback: res.Reply.Fallback,
	}
	if res.Sentiment != nil {
		label, score := res.Sentiment.Sentiment, res.Sentiment.Score
		resp.Sentiment = &label
		resp.SentimentScore = &score
		resp.Explanation = res.Sentiment.Explanation
		resp.SentimentAvailable = true
	}
	if res.Degraded != nil {
		h.logger.Warn("chat response degraded",
			zap.String("conversationID", req.ConversationID),
			zap.Error(res.Degraded))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetConversation(c *gin.Context) {
	view, err := h.chat.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConversationResponse{
		ID:               view.Conversation.ID,
		CreatedAt:        view.Conversation.CreatedAt,
		OverallSentiment: view.Conversation.OverallSentiment,
		OverallScore:     view.Conversation.SentimentScore,
		Messages:         view.Messages,
	})
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.chat.ListConversations(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) AnalyzeConversation(c *gin.Context) {
	res, err := h.chat.AnalyzeConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AnalysisResponse{
		ConversationID:   res.ConversationID,
		OverallSentiment: res.Sentiment,
		OverallScore:     res.Score,
		Summary:          res.Summary,
		MessageCount:     res.MessageCount,
	})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.chat.Ping(c.Request.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyConversation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chat.ErrAnalysisUnavailable), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal server error"
	} else {
		h.logger.Info("request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, ErrorResponse{Error: msg})
}
