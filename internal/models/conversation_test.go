package models

import "testing"

func TestLabelForScore_Bands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  Sentiment
	}{
		{0.0, SentimentNegative},
		{0.39, SentimentNegative},
		{0.4, SentimentNeutral},
		{0.5, SentimentNeutral},
		{0.6, SentimentNeutral},
		{0.61, SentimentPositive},
		{1.0, SentimentPositive},
	}
	for _, c := range cases {
		if got := LabelForScore(c.score); got != c.want {
			t.Fatalf("LabelForScore(%v)=%q want %q", c.score, got, c.want)
		}
	}
}

func TestLabelForScore_CoversUnitInterval(t *testing.T) {
	t.Parallel()

	for i := 0; i <= 1000; i++ {
		s := float64(i) / 1000
		got := LabelForScore(s)
		switch {
		case s > 0.6 && got != SentimentPositive:
			t.Fatalf("score %v labelled %q", s, got)
		case s < 0.4 && got != SentimentNegative:
			t.Fatalf("score %v labelled %q", s, got)
		case s >= 0.4 && s <= 0.6 && got != SentimentNeutral:
			t.Fatalf("score %v labelled %q", s, got)
		}
	}
}

func TestSentimentAndRoleValid(t *testing.T) {
	t.Parallel()

	if !SentimentNeutral.Valid() || Sentiment("mixed").Valid() {
		t.Fatalf("Sentiment.Valid mismatch")
	}
	if !RoleAssistant.Valid() || Role("system").Valid() {
		t.Fatalf("Role.Valid mismatch")
	}
}
