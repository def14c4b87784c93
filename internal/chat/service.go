package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/RichardoC/sentichat/internal/db"
	"github.com/RichardoC/sentichat/internal/llm"
	"github.com/RichardoC/sentichat/internal/models"
	"go.uber.org/zap"
)

// FallbackReply is stored and returned when the provider cannot produce a reply.
const FallbackReply = "I'm sorry, I couldn't come up with a reply just now. Your message was saved; please try again in a moment."

// Provider is the subset of *llm.Service the chat flow depends on.
type Provider interface {
	ClassifyMessage(ctx context.Context, text string) (llm.MessageSentiment, error)
	ClassifyConversation(ctx context.Context, userMessages []string) (llm.ConversationSentiment, error)
	GenerateReply(ctx context.Context, history []models.Message) (string, error)
}

type Service struct {
	store    *db.Database
	provider Provider
	logger   *zap.Logger
}

func NewService(store *db.Database, provider Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, provider: provider, logger: logger.Named("chat")}
}

type ChatResult struct {
	UserMessage models.Message
	Reply       models.Message
	// Sentiment is nil when classification failed.
	Sentiment *llm.MessageSentiment
	// Degraded holds absorbed failures (sentiment or reply generation).
	Degraded error
}

type AnalysisResult struct {
	ConversationID string
	Sentiment      models.Sentiment
	Score          float64
	Summary        string
	MessageCount   int
}

type ConversationView struct {
	Conversation models.Conversation
	Messages     []models.Message
}

func (s *Service) StartConversation(ctx context.Context) (models.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx)
	if err != nil {
		return models.Conversation{}, storeErr("create conversation", err)
	}
	s.logger.Info("conversation started", zap.String("conversationID", conv.ID))
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (ConversationView, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return ConversationView{}, storeErr("get conversation", err)
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return ConversationView{}, storeErr("list messages", err)
	}
	return ConversationView{Conversation: conv, Messages: msgs}, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	return convs, nil
}

type exchange struct {
	conversationID string
	text           string
	user           models.Message
	sentiment      *llm.MessageSentiment
	history        []models.Message
	replyText      string
	fallback       bool
	reply          models.Message
}

// HandleUserMessage stores the user's message before any provider call, then
// scores it and asks for a reply. Provider failures while scoring or replying
// are absorbed; validation and persistence failures are returned. The text is
// stored as sent.
func (s *Service) HandleUserMessage(ctx context.Context, conversationID, text string) (ChatResult, error) {
	state := &exchange{conversationID: conversationID, text: text}

	degraded, err := runPipeline(ctx, s.logger, state, []step[exchange]{
		{name: "validate", onFailure: propagate, run: s.validateMessage},
		{name: "store_user_message", onFailure: propagate, run: s.storeUserMessage},
		{name: "classify_message", onFailure: absorb, run: s.classifyMessage,
			recover: func(st *exchange, err error) error {
				st.sentiment = nil
				return fmt.Errorf("%w: %w", ErrSentimentUnavailable, err)
			}},
		{name: "store_message_sentiment", onFailure: propagate, run: s.storeMessageSentiment},
		{name: "load_history", onFailure: propagate, run: s.loadHistory},
		{name: "generate_reply", onFailure: absorb, run: s.generateReply,
			recover: func(st *exchange, err error) error {
				st.replyText = FallbackReply
				st.fallback = true
				return err
			}},
		{name: "store_reply", onFailure: propagate, run: s.storeReply},
	})
	if err != nil {
		return ChatResult{}, err
	}

	s.logger.Info("message exchanged",
		zap.String("conversationID", conversationID),
		zap.Bool("sentimentAvailable", state.sentiment != nil),
		zap.Bool("replyFallback", state.fallback))

	return ChatResult{
		UserMessage: state.user,
		Reply:       state.reply,
		Sentiment:   state.sentiment,
		Degraded:    degraded,
	}, nil
}

func (s *Service) validateMessage(_ context.Context, st *exchange) error {
	if strings.TrimSpace(st.text) == "" {
		return fmt.Errorf("%w: message must not be empty", ErrValidation)
	}
	if strings.TrimSpace(st.conversationID) == "" {
		return fmt.Errorf("%w: conversationId is required", ErrValidation)
	}
	return nil
}

func (s *Service) storeUserMessage(ctx context.Context, st *exchange) error {
	msg, err := s.store.AppendMessage(ctx, models.Message{
		ConvID:  st.conversationID,
		Role:    models.RoleUser,
		Content: st.text,
	})
	if err != nil {
		return storeErr("store user message", err)
	}
	st.user = msg
	return nil
}

func (s *Service) classifyMessage(ctx context.Context, st *exchange) error {
	res, err := s.provider.ClassifyMessage(ctx, st.text)
	if err != nil {
		return err
	}
	st.sentiment = &res
	return nil
}

func (s *Service) storeMessageSentiment(ctx context.Context, st *exchange) error {
	if st.sentiment == nil {
		return nil
	}
	if err := s.store.UpdateMessageSentiment(ctx, st.user.ID, st.sentiment.Sentiment, st.sentiment.Score); err != nil {
		return storeErr("store message sentiment", err)
	}
	label, score := st.sentiment.Sentiment, st.sentiment.Score
	st.user.Sentiment = &label
	st.user.SentimentScore = &score
	return nil
}

func (s *Service) loadHistory(ctx context.Context, st *exchange) error {
	history, err := s.store.ListMessages(ctx, st.conversationID)
	if err != nil {
		return storeErr("load history", err)
	}
	st.history = history
	return nil
}

func (s *Service) generateReply(ctx context.Context, st *exchange) error {
	reply, err := s.provider.GenerateReply(ctx, st.history)
	if err != nil {
		return err
	}
	st.replyText = reply
	return nil
}

func (s *Service) storeReply(ctx context.Context, st *exchange) error {
	msg, err := s.store.AppendMessage(ctx, models.Message{
		ConvID:   st.conversationID,
		Role:     models.RoleAssistant,
		Content:  st.replyText,
		Fallback: st.fallback,
	})
	if err != nil {
		return storeErr("store reply", err)
	}
	st.reply = msg
	return nil
}

type analysis struct {
	conversationID string
	userMessages   []string
	result         llm.ConversationSentiment
}

// AnalyzeConversation runs the aggregate judgment over every user message and
// overwrites the conversation's stored result. Provider failures are returned
// as ErrAnalysisUnavailable.
func (s *Service) AnalyzeConversation(ctx context.Context, conversationID string) (AnalysisResult, error) {
	state := &analysis{conversationID: conversationID}

	_, err := runPipeline(ctx, s.logger, state, []step[analysis]{
		{name: "load_user_messages", onFailure: propagate, run: s.loadUserMessages},
		{name: "classify_conversation", onFailure: propagate, run: s.classifyConversation},
		{name: "store_conversation_sentiment", onFailure: propagate, run: s.storeConversationSentiment},
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	s.logger.Info("conversation analyzed",
		zap.String("conversationID", conversationID),
		zap.String("sentiment", string(state.result.Sentiment)),
		zap.Float64("score", state.result.Score),
		zap.Int("messageCount", len(state.userMessages)))

	return AnalysisResult{
		ConversationID: conversationID,
		Sentiment:      state.result.Sentiment,
		Score:          state.result.Score,
		Summary:        state.result.Summary,
		MessageCount:   len(state.userMessages),
	}, nil
}

func (s *Service) loadUserMessages(ctx context.Context, st *analysis) error {
	msgs, err := s.store.ListMessages(ctx, st.conversationID)
	if err != nil {
		return storeErr("load messages", err)
	}
	for _, m := range msgs {
		if m.IsUser() {
			st.userMessages = append(st.userMessages, m.Content)
		}
	}
	if len(st.userMessages) == 0 {
		return ErrEmptyConversation
	}
	return nil
}

func (s *Service) classifyConversation(ctx context.Context, st *analysis) error {
	res, err := s.provider.ClassifyConversation(ctx, st.userMessages)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}
	st.result = res
	return nil
}

func (s *Service) storeConversationSentiment(ctx context.Context, st *analysis) error {
	if err := s.store.UpdateConversationSentiment(ctx, st.conversationID, st.result.Sentiment, st.result.Score); err != nil {
		return storeErr("store conversation sentiment", err)
	}
	return nil
}
