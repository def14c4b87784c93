package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RichardoC/sentichat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

type Options struct {
	BaseURL string
	Token   string
	// Model generates chat replies; SentimentModel classifies. An empty
	// SentimentModel reuses Model.
	Model          string
	SentimentModel string
	// Timeout bounds each provider round trip. Zero means no bound.
	Timeout time.Duration
	// MaxHistoryTokens caps the history sent with a reply request. Zero
	// disables trimming.
	MaxHistoryTokens int
	HTTPClient       *http.Client
}

type MessageSentiment struct {
	Sentiment   models.Sentiment `json:"sentiment"`
	Score       float64          `json:"score"`
	Explanation string           `json:"explanation"`
}

type ConversationSentiment struct {
	Sentiment models.Sentiment `json:"sentiment"`
	Score     float64          `json:"score"`
	Summary   string           `json:"summary"`
}

// Service adapts an OpenAI-compatible text generation endpoint. Each call is
// a single attempt; failures come back as *ProviderError.
type Service struct {
	llm            llms.Model
	model          string
	sentimentModel string
	timeout        time.Duration
	maxTokens      int
	countTokens    func(model, text string) int
	logger         *zap.Logger
}

func New(opts Options, logger *zap.Logger) (*Service, error) {
	clientOpts := []openai.Option{
		openai.WithToken(opts.Token),
		openai.WithBaseURL(opts.BaseURL),
		openai.WithModel(opts.Model),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, openai.WithHTTPClient(opts.HTTPClient))
	}
	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, opts, logger), nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(llm llms.Model, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	sentimentModel := opts.SentimentModel
	if sentimentModel == "" {
		sentimentModel = opts.Model
	}
	return &Service{
		llm:            llm,
		model:          opts.Model,
		sentimentModel: sentimentModel,
		timeout:        opts.Timeout,
		maxTokens:      opts.MaxHistoryTokens,
		countTokens:    llms.CountTokens,
		logger:         logger.Named("llm"),
	}
}

func (s *Service) ClassifyMessage(ctx context.Context, text string) (MessageSentiment, error) {
	const op = "classify_message"

	prompt := fmt.Sprintf(messageSentimentPrompt, messageSentimentSchema, text)
	raw, err := s.complete(ctx, op, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, s.classifyOptions()...)
	if err != nil {
		return MessageSentiment{}, err
	}

	var reply messageSentimentReply
	if err := decodeStrict(raw, &reply); err != nil {
		return MessageSentiment{}, malformed(op, err)
	}
	if err := reply.validate(); err != nil {
		return MessageSentiment{}, malformed(op, err)
	}

	label := s.enforceBand(op, *reply.Score, reply.Sentiment)
	return MessageSentiment{
		Sentiment:   label,
		Score:       *reply.Score,
		Explanation: strings.TrimSpace(*reply.Explanation),
	}, nil
}

// ClassifyConversation judges all user messages of a conversation in one prompt.
func (s *Service) ClassifyConversation(ctx context.Context, userMessages []string) (ConversationSentiment, error) {
	const op = "classify_conversation"
	if len(userMessages) == 0 {
		return ConversationSentiment{}, errors.New("classify conversation: no user messages")
	}

	var transcript strings.Builder
	for i, m := range userMessages {
		fmt.Fprintf(&transcript, "%d. user: %s\n", i+1, m)
	}
	prompt := fmt.Sprintf(conversationSentimentPrompt, conversationSentimentSchema, transcript.String())

	raw, err := s.complete(ctx, op, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, s.classifyOptions()...)
	if err != nil {
		return ConversationSentiment{}, err
	}

	var reply conversationSentimentReply
	if err := decodeStrict(raw, &reply); err != nil {
		return ConversationSentiment{}, malformed(op, err)
	}
	if err := reply.validate(); err != nil {
		return ConversationSentiment{}, malformed(op, err)
	}

	label := s.enforceBand(op, *reply.Score, reply.Sentiment)
	return ConversationSentiment{
		Sentiment: label,
		Score:     *reply.Score,
		Summary:   strings.TrimSpace(*reply.Summary),
	}, nil
}

// GenerateReply produces the assistant's next turn. Fallback replies in the
// history are not sent to the model.
func (s *Service) GenerateReply(ctx context.Context, history []models.Message) (string, error) {
	const op = "generate_reply"

	turns := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Fallback {
			continue
		}
		turns = append(turns, m)
	}
	turns = s.trimHistory(turns)

	msgs := make([]llms.MessageContent, 0, len(turns)+1)
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, chatSystemPrompt))
	for _, m := range turns {
		role := schema.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}

	raw, err := s.complete(ctx, op, msgs, llms.WithModel(s.model))
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", malformed(op, errors.New("empty reply"))
	}
	return reply, nil
}

// trimHistory drops the oldest turns until the rest fits the token budget.
// The newest turn is always kept.
func (s *Service) trimHistory(turns []models.Message) []models.Message {
	if s.maxTokens <= 0 || len(turns) <= 1 {
		return turns
	}
	total := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		total += s.countTokens(s.model, turns[i].Content)
		if total > s.maxTokens && i < len(turns)-1 {
			break
		}
		start = i
	}
	if start > 0 {
		s.logger.Debug("trimmed history",
			zap.Int("dropped", start),
			zap.Int("kept", len(turns)-start),
			zap.Int("maxTokens", s.maxTokens))
	}
	return turns[start:]
}

func (s *Service) classifyOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithModel(s.sentimentModel),
		llms.WithJSONMode(),
		llms.WithTemperature(0),
	}
}

// enforceBand returns the locally computed label for score. A remote label
// that disagrees is only logged.
func (s *Service) enforceBand(op string, score float64, remote *string) models.Sentiment {
	label := models.LabelForScore(score)
	if remote != nil && models.Sentiment(*remote) != label {
		s.logger.Debug("remote label overridden by score band",
			zap.String("op", op),
			zap.String("remote", *remote),
			zap.String("local", string(label)),
			zap.Float64("score", score))
	}
	return label
}

// complete performs one round trip. The call is detached from the caller's
// cancellation and bounded only by the configured timeout.
func (s *Service) complete(ctx context.Context, op string, msgs []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		perr := classifyCallError(ctx, op, err)
		s.logger.Warn("provider call failed",
			zap.String("op", op),
			zap.String("kind", string(perr.Kind)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", perr
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", malformed(op, errors.New("no choices in response"))
	}

	s.logger.Debug("provider call ok",
		zap.String("op", op),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Content, nil
}
