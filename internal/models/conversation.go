package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// Score bands. A score strictly above PositiveThreshold is positive, strictly
// below NegativeThreshold is negative, anything in between is neutral.
const (
	PositiveThreshold = 0.6
	NegativeThreshold = 0.4
)

// LabelForScore maps a score in [0,1] to its sentiment band.
func LabelForScore(score float64) Sentiment {
	switch {
	case score > PositiveThreshold:
		return SentimentPositive
	case score < NegativeThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

type Message struct {
	ID             string     `json:"id"`
	ConvID         string     `json:"conversationId"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Sentiment      *Sentiment `json:"sentiment"`
	SentimentScore *float64   `json:"sentimentScore"`
	// Fallback marks an assistant message that was produced locally because
	// the provider failed.
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

type Conversation struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"createdAt"`
	OverallSentiment *Sentiment `json:"overallSentiment"`
	SentimentScore   *float64   `json:"overallScore"`
}

// Analyzed reports whether an aggregate analysis has been stored.
func (c *Conversation) Analyzed() bool {
	return c.OverallSentiment != nil && c.SentimentScore != nil
}
