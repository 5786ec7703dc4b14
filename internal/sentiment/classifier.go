package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/azure/social-mentions-monitor/internal/llm"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 5

// Classification outcomes reported to the observer
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeLexicon  = "lexicon"
)

var validIntents = map[string]bool{
	"question":  true,
	"complaint": true,
	"praise":    true,
	"inquiry":   true,
	"feedback":  true,
	"other":     true,
}

// Input is the text to classify plus the context the model sees
type Input struct {
	ID         string
	Text       string
	AuthorName string
	Followers  int
	Engagement models.Engagement
}

// InputFromMention builds the classifier input for a stored item
func InputFromMention(m *models.Mention) Input {
	name := m.Author.DisplayName
	if name == "" {
		name = m.Author.Handle
	}
	return Input{
		ID:         m.ID,
		Text:       m.Content,
		AuthorName: name,
		Followers:  m.Author.Followers,
		Engagement: m.Engagement,
	}
}

// Options tune a Classifier. Observe, when set, is called once per item with
// the outcome and elapsed time.
type Options struct {
	BatchSize int
	Observe   func(outcome string, elapsed time.Duration)
}

// Classifier turns item text into a models.Classification. With no backend
// it uses the built-in lexicon.
type Classifier struct {
	completer llm.Completer
	batchSize int
	observe   func(string, time.Duration)
}

func NewClassifier(completer llm.Completer, opts Options) *Classifier {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	observe := opts.Observe
	if observe == nil {
		observe = func(string, time.Duration) {}
	}
	return &Classifier{
		completer: completer,
		batchSize: opts.BatchSize,
		observe:   observe,
	}
}

// DefaultClassification is returned whenever a result cannot be obtained
func DefaultClassification() models.Classification {
	return models.Classification{
		Sentiment:        models.SentimentNeutral,
		Score:            0,
		Confidence:       0,
		Intent:           "other",
		RequiresResponse: false,
		Priority:         models.PriorityLow,
	}
}

// Classify never fails. Backend and parse errors resolve to
// DefaultClassification.
func (c *Classifier) Classify(ctx context.Context, in Input) models.Classification {
	result, err := c.classify(ctx, in)
	if err != nil {
		logrus.WithField("item", in.ID).Warnf("Classification failed, using neutral default: %v", err)
		return DefaultClassification()
	}
	return result
}

// ClassifyBatch classifies inputs concurrently in groups of the configured
// batch size. Items that failed are absent from the map and reported in the
// error list.
func (c *Classifier) ClassifyBatch(ctx context.Context, inputs []Input) (map[string]models.Classification, []string) {
	results := make(map[string]models.Classification, len(inputs))
	var errs []string
	var mu sync.Mutex

	for start := 0; start < len(inputs); start += c.batchSize {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Sprintf("classification aborted: %v", ctx.Err()))
			break
		}

		end := start + c.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}

		var g errgroup.Group
		for _, in := range inputs[start:end] {
			in := in
			g.Go(func() error {
				result, err := c.classify(ctx, in)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Sprintf("item %s: %v", in.ID, err))
					return nil
				}
				results[in.ID] = result
				return nil
			})
		}
		_ = g.Wait()
	}

	return results, errs
}

func (c *Classifier) classify(ctx context.Context, in Input) (models.Classification, error) {
	start := time.Now()

	if c.completer == nil {
		result := Lexicon(in)
		c.observe(OutcomeLexicon, time.Since(start))
		return result, nil
	}

	text, err := c.completer.Complete(ctx, buildPrompt(in))
	if err != nil {
		c.observe(OutcomeFallback, time.Since(start))
		return models.Classification{}, fmt.Errorf("classifier backend: %w", err)
	}

	result, err := ParseClassification(text)
	if err != nil {
		c.observe(OutcomeFallback, time.Since(start))
		return models.Classification{}, err
	}

	c.observe(OutcomeOK, time.Since(start))
	return result, nil
}

func buildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Analyze the sentiment of this social media post about a brand.\n\n")
	b.WriteString("Post:\n\"\"\"\n")
	b.WriteString(in.Text)
	b.WriteString("\n\"\"\"\n\n")

	if in.AuthorName != "" || in.Followers > 0 || in.Engagement.Total() > 0 {
		b.WriteString("Context:\n")
		if in.AuthorName != "" {
			fmt.Fprintf(&b, "- Author: %s\n", in.AuthorName)
		}
		if in.Followers > 0 {
			fmt.Fprintf(&b, "- Author followers: %d\n", in.Followers)
		}
		fmt.Fprintf(&b, "- Engagement: %d likes, %d comments, %d shares\n\n",
			in.Engagement.Likes, in.Engagement.Comments, in.Engagement.Shares)
	}

	b.WriteString(`Respond with only a JSON object in this exact format:
{
  "sentiment": "positive" | "neutral" | "negative",
  "score": number between -1 and 1,
  "confidence": number between 0 and 1,
  "emotions": {"joy": 0-1, "anger": 0-1, "sadness": 0-1, "fear": 0-1, "surprise": 0-1},
  "intent": "question" | "complaint" | "praise" | "inquiry" | "feedback" | "other",
  "keywords": ["key", "phrases"],
  "requiresResponse": true | false,
  "priority": "low" | "medium" | "high" | "critical"
}`)

	return b.String()
}

// rawClassification mirrors the expected JSON with optional numbers so
// missing values can be told apart from zero
type rawClassification struct {
	Sentiment        string             `json:"sentiment"`
	Score            *float64           `json:"score"`
	Confidence       *float64           `json:"confidence"`
	Emotions         map[string]float64 `json:"emotions"`
	Intent           string             `json:"intent"`
	Keywords         []string           `json:"keywords"`
	RequiresResponse bool               `json:"requiresResponse"`
	Priority         string             `json:"priority"`
}

// ParseClassification extracts the first JSON object from text and clamps
// every numeric field into range
func ParseClassification(text string) (models.Classification, error) {
	span, ok := firstJSONObject(text)
	if !ok {
		return models.Classification{}, fmt.Errorf("no JSON object in classifier response")
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return models.Classification{}, fmt.Errorf("failed to parse classifier response: %w", err)
	}

	result := DefaultClassification()

	if raw.Score != nil {
		result.Score = clamp(*raw.Score, -1, 1)
	}
	if raw.Confidence != nil {
		result.Confidence = clamp(*raw.Confidence, 0, 1)
	}

	switch s := models.Sentiment(strings.ToLower(strings.TrimSpace(raw.Sentiment))); s {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
		result.Sentiment = s
	default:
		result.Sentiment = labelForScore(result.Score)
	}

	result.Emotions = models.Emotions{
		Joy:      clamp(raw.Emotions["joy"], 0, 1),
		Anger:    clamp(raw.Emotions["anger"], 0, 1),
		Sadness:  clamp(raw.Emotions["sadness"], 0, 1),
		Fear:     clamp(raw.Emotions["fear"], 0, 1),
		Surprise: clamp(raw.Emotions["surprise"], 0, 1),
	}

	if intent := strings.ToLower(strings.TrimSpace(raw.Intent)); validIntents[intent] {
		result.Intent = intent
	}

	switch p := models.Priority(strings.ToLower(strings.TrimSpace(raw.Priority))); p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical:
		result.Priority = p
	}

	result.Keywords = raw.Keywords
	result.RequiresResponse = raw.RequiresResponse

	return result, nil
}

// firstJSONObject returns the first balanced {...} span, ignoring braces
// inside string literals
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func labelForScore(score float64) models.Sentiment {
	switch {
	case score > 0.1:
		return models.SentimentPositive
	case score < -0.1:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
