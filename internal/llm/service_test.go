package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RichardoC/sentichat/internal/models"
	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   bool
	calls   [][]llms.MessageContent
	options []llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	var co llms.CallOptions
	for _, o := range opts {
		o(&co)
	}
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.options = append(f.options, co)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func (f *fakeModel) lastPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("no calls recorded")
	}
	msgs := f.calls[len(f.calls)-1]
	text, ok := msgs[len(msgs)-1].Parts[0].(llms.TextContent)
	if !ok {
		t.Fatalf("last part is %T", msgs[len(msgs)-1].Parts[0])
	}
	return text.Text
}

func newService(m llms.Model) *Service {
	return NewWithModel(m, Options{Model: "chat-model", SentimentModel: "sentiment-model", Timeout: time.Second}, nil)
}

func TestClassifyMessage_Positive(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: `{"sentiment":"positive","score":0.92,"explanation":" Joyful tone. "}`}
	svc := newService(m)

	got, err := svc.ClassifyMessage(context.Background(), "I'm so happy today!")
	if err != nil {
		t.Fatalf("ClassifyMessage: %v", err)
	}
	if got.Sentiment != models.SentimentPositive || got.Score != 0.92 || got.Explanation != "Joyful tone." {
		t.Fatalf("got=%+v", got)
	}

	prompt := m.lastPrompt(t)
	if !strings.Contains(prompt, `"I'm so happy today!"`) {
		t.Fatalf("prompt missing text: %s", prompt)
	}
	if !strings.Contains(prompt, `"explanation"`) {
		t.Fatalf("prompt missing schema: %s", prompt)
	}
	if co := m.options[0]; !co.JSONMode || co.Model != "sentiment-model" {
		t.Fatalf("options=%+v", co)
	}
}

func TestClassifyMessage_BandEnforcedLocally(t *testing.T) {
	t.Parallel()
	cases := []struct {
		reply string
		want  models.Sentiment
	}{
		{`{"sentiment":"positive","score":0.2,"explanation":"x"}`, models.SentimentNegative},
		{`{"sentiment":"negative","score":0.5,"explanation":"x"}`, models.SentimentNeutral},
		{`{"score":0.75,"explanation":"score only"}`, models.SentimentPositive},
		{"```json\n{\"score\":0.1,\"explanation\":\"fenced\"}\n```", models.SentimentNegative},
	}
	for _, c := range cases {
		svc := newService(&fakeModel{reply: c.reply})
		got, err := svc.ClassifyMessage(context.Background(), "x")
		if err != nil {
			t.Fatalf("reply %q: %v", c.reply, err)
		}
		if got.Sentiment != c.want {
			t.Fatalf("reply %q: Sentiment=%q want %q", c.reply, got.Sentiment, c.want)
		}
	}
}

func TestClassifyMessage_MalformedReplies(t *testing.T) {
	t.Parallel()
	replies := []string{
		``,
		`I think it's positive.`,
		`Sure! {"sentiment":"positive","score":0.9,"explanation":"x"}`,
		`{"sentiment":"positive","score":0.9,"explanation":"x"} hope that helps`,
		`{"sentiment":"positive","explanation":"missing score"}`,
		`{"sentiment":"positive","score":"0.9","explanation":"string score"}`,
		`{"sentiment":"positive","score":1.5,"explanation":"out of range"}`,
		`{"sentiment":"ecstatic","score":0.9,"explanation":"bad label"}`,
		`{"sentiment":"positive","score":0.9}`,
		`{"sentiment":"positive","score":0.9,"explanation":"x","confidence":1}`,
		`[{"score":0.9}]`,
	}
	for _, r := range replies {
		svc := newService(&fakeModel{reply: r})
		_, err := svc.ClassifyMessage(context.Background(), "x")
		if !IsKind(err, KindMalformedResponse) {
			t.Fatalf("reply %q: err=%v, want malformed", r, err)
		}
	}
}

func TestClassifyConversation(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: `{"sentiment":"positive","score":0.7,"summary":"Started low and ended upbeat."}`}
	svc := newService(m)

	got, err := svc.ClassifyConversation(context.Background(), []string{"Start negative", "End positive"})
	if err != nil {
		t.Fatalf("ClassifyConversation: %v", err)
	}
	if got.Sentiment != models.SentimentPositive || got.Score != 0.7 || got.Summary == "" {
		t.Fatalf("got=%+v", got)
	}
	prompt := m.lastPrompt(t)
	first := strings.Index(prompt, "Start negative")
	second := strings.Index(prompt, "End positive")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("messages missing or out of order in prompt: %s", prompt)
	}
}

func TestClassifyConversation_EmptyInputRejectedLocally(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: `{"score":0.5,"summary":"x"}`}
	svc := newService(m)

	_, err := svc.ClassifyConversation(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected error for empty input")
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		t.Fatalf("empty input reported as provider failure: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("provider called %d times for empty input", len(m.calls))
	}
}

func TestCountTokens_Offline(t *testing.T) {
	t.Parallel()

	enc, err := tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		t.Fatalf("GetEncoding(%s): %v", fallbackEncoding, err)
	}
	if n := len(enc.Encode("hello there, friend", nil, nil)); n == 0 {
		t.Fatalf("no tokens")
	}
	if n := llms.CountTokens("meta-llama/llama-3.1-8b-instruct:free", "hello there, friend"); n <= 0 {
		t.Fatalf("CountTokens=%d", n)
	}
}

func TestClassifyConversation_MissingSummary(t *testing.T) {
	t.Parallel()
	svc := newService(&fakeModel{reply: `{"sentiment":"neutral","score":0.5}`})
	_, err := svc.ClassifyConversation(context.Background(), []string{"hi"})
	if !IsKind(err, KindMalformedResponse) {
		t.Fatalf("err=%v", err)
	}
}

func TestGenerateReply_HistoryAndRoles(t *testing.T) {
	t.Parallel()
	m := &fakeModel{reply: "  Glad to hear it!  "}
	svc := newService(m)

	history := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "Sorry, something went wrong.", Fallback: true},
		{Role: models.RoleAssistant, Content: "hi there"},
		{Role: models.RoleUser, Content: "I'm so happy today!"},
	}
	reply, err := svc.GenerateReply(context.Background(), history)
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply != "Glad to hear it!" {
		t.Fatalf("reply=%q", reply)
	}

	msgs := m.calls[0]
	if len(msgs) != 4 {
		t.Fatalf("len(msgs)=%d, want system + 3 turns", len(msgs))
	}
	wantRoles := []schema.ChatMessageType{schema.ChatMessageTypeSystem, schema.ChatMessageTypeHuman, schema.ChatMessageTypeAI, schema.ChatMessageTypeHuman}
	for i, r := range wantRoles {
		if msgs[i].Role != r {
			t.Fatalf("msgs[%d].Role=%q want %q", i, msgs[i].Role, r)
		}
	}
	if m.options[0].Model != "chat-model" {
		t.Fatalf("Model=%q", m.options[0].Model)
	}
}

func TestGenerateReply_EmptyIsMalformed(t *testing.T) {
	t.Parallel()
	svc := newService(&fakeModel{reply: "   "})
	_, err := svc.GenerateReply(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if !IsKind(err, KindMalformedResponse) {
		t.Fatalf("err=%v", err)
	}
}

func TestTrimHistory_KeepsNewestWithinBudget(t *testing.T) {
	t.Parallel()
	svc := NewWithModel(&fakeModel{}, Options{Model: "m", MaxHistoryTokens: 5}, nil)
	svc.countTokens = func(_, text string) int { return len(strings.Fields(text)) }

	turns := []models.Message{
		{Content: "one two three"},
		{Content: "four five"},
		{Content: "six seven eight"},
	}
	got := svc.trimHistory(turns)
	if len(got) != 2 || got[0].Content != "four five" {
		t.Fatalf("got=%+v", got)
	}

	huge := []models.Message{{Content: "a b c d e f g h"}}
	if got := svc.trimHistory(huge); len(got) != 1 {
		t.Fatalf("newest turn dropped: %+v", got)
	}
}

func TestComplete_Timeout(t *testing.T) {
	t.Parallel()
	svc := NewWithModel(&fakeModel{block: true}, Options{Model: "m", Timeout: 20 * time.Millisecond}, nil)

	_, err := svc.ClassifyMessage(context.Background(), "x")
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err=%v", err)
	}
}

func TestComplete_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	svc := newService(&fakeModel{reply: `{"score":0.5,"explanation":"ok"}`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.ClassifyMessage(ctx, "x"); err != nil {
		t.Fatalf("ClassifyMessage after cancel: %v", err)
	}
}

func TestComplete_TransportError(t *testing.T) {
	t.Parallel()
	svc := newService(&fakeModel{err: errors.New("dial tcp: connection refused")})
	_, err := svc.GenerateReply(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if !IsKind(err, KindTransport) {
		t.Fatalf("err=%v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "generate_reply" {
		t.Fatalf("pe=%+v", pe)
	}
}

func TestOpenAIClient_AgainstFakeServer(t *testing.T) {
	t.Parallel()

	var status int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		code := status
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if code != http.StatusOK {
			w.WriteHeader(code)
			fmt.Fprint(w, `{"error":{"message":"upstream overloaded"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"sentiment\":\"negative\",\"score\":0.1,\"explanation\":\"Let down.\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	svc, err := New(Options{BaseURL: srv.URL, Token: "test", Model: "m", Timeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mu.Lock()
	status = http.StatusOK
	mu.Unlock()
	got, err := svc.ClassifyMessage(context.Background(), "This is disappointing")
	if err != nil {
		t.Fatalf("ClassifyMessage: %v", err)
	}
	if got.Sentiment != models.SentimentNegative || got.Score >= 0.4 {
		t.Fatalf("got=%+v", got)
	}

	mu.Lock()
	status = http.StatusServiceUnavailable
	mu.Unlock()
	_, err = svc.ClassifyMessage(context.Background(), "x")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindNonOKStatus || pe.Status != http.StatusServiceUnavailable {
		t.Fatalf("err=%v", err)
	}
}
