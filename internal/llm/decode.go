package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/RichardoC/sentichat/internal/models"
)

// messageSentimentReply is the wire shape the model must return for a single
// message. Pointers distinguish a missing key from a zero value.
type messageSentimentReply struct {
	Sentiment   *string  `json:"sentiment,omitempty" jsonschema:"enum=positive,enum=negative,enum=neutral"`
	Score       *float64 `json:"score" jsonschema:"minimum=0,maximum=1" jsonschema_description:"0.0 is very negative and 1.0 is very positive with 0.5 neutral"`
	Explanation *string  `json:"explanation" jsonschema_description:"one sentence"`
}

type conversationSentimentReply struct {
	Sentiment *string  `json:"sentiment,omitempty" jsonschema:"enum=positive,enum=negative,enum=neutral"`
	Score     *float64 `json:"score" jsonschema:"minimum=0,maximum=1" jsonschema_description:"0.0 is very negative and 1.0 is very positive with 0.5 neutral"`
	Summary   *string  `json:"summary" jsonschema_description:"one sentence describing the emotional direction"`
}

// decodeStrict decodes exactly one JSON object into v. Surrounding whitespace
// and a single Markdown code fence are tolerated; any other text, unknown
// keys or trailing data are errors.
func decodeStrict(raw string, v any) error {
	s := stripCodeFence(strings.TrimSpace(raw))
	if s == "" {
		return errors.New("empty response")
	}
	if !strings.HasPrefix(s, "{") {
		return fmt.Errorf("response is not a JSON object (starts with %q)", firstRune(s))
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl == -1 || !strings.HasSuffix(s, "```") {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(s[nl+1:], "```"))
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

func validateScore(score *float64) error {
	if score == nil {
		return errors.New(`missing key "score"`)
	}
	if *score < 0 || *score > 1 {
		return fmt.Errorf("score %v outside [0,1]", *score)
	}
	return nil
}

func validateLabel(label *string) error {
	if label == nil {
		return nil
	}
	if !models.Sentiment(*label).Valid() {
		return fmt.Errorf("unknown sentiment %q", *label)
	}
	return nil
}

func (r messageSentimentReply) validate() error {
	if err := validateScore(r.Score); err != nil {
		return err
	}
	if err := validateLabel(r.Sentiment); err != nil {
		return err
	}
	if r.Explanation == nil {
		return errors.New(`missing key "explanation"`)
	}
	return nil
}

func (r conversationSentimentReply) validate() error {
	if err := validateScore(r.Score); err != nil {
		return err
	}
	if err := validateLabel(r.Sentiment); err != nil {
		return err
	}
	if r.Summary == nil {
		return errors.New(`missing key "summary"`)
	}
	return nil
}
