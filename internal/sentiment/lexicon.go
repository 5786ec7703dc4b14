package sentiment

import (
	"strings"

	"github.com/azure/social-mentions-monitor/internal/models"
)

var (
	positiveWords = []string{"good", "great", "excellent", "love", "awesome", "fantastic", "helpful", "works", "solved", "thanks", "thank you", "amazing", "recommend"}
	negativeWords = []string{"bad", "terrible", "awful", "hate", "broken", "error", "fail", "problem", "issue", "bug", "worst", "refund", "scam", "disappointed"}
	angerWords    = []string{"hate", "angry", "furious", "worst", "ridiculous", "unacceptable", "scam"}
	fearWords     = []string{"worried", "scared", "afraid", "security", "breach", "leak", "hacked"}
	questionLeads = []string{"how ", "what ", "why ", "when ", "where ", "can ", "does ", "is ", "anyone "}
)

// Lexicon is the keyword-count classifier used when no model backend is
// configured. Confidence stays low to mark the result as heuristic.
func Lexicon(in Input) models.Classification {
	content := strings.ToLower(in.Text)

	positiveCount := countAny(content, positiveWords)
	negativeCount := countAny(content, negativeWords)

	result := DefaultClassification()
	result.Confidence = 0.3

	if total := positiveCount + negativeCount; total > 0 {
		result.Score = clamp(float64(positiveCount-negativeCount)/float64(total), -1, 1)
		result.Confidence = 0.5
	}

	if positiveCount > negativeCount {
		result.Sentiment = models.SentimentPositive
	} else if negativeCount > positiveCount {
		result.Sentiment = models.SentimentNegative
	}

	result.Emotions = models.Emotions{
		Joy:   clamp(0.35*float64(positiveCount), 0, 1),
		Anger: clamp(0.4*float64(countAny(content, angerWords)), 0, 1),
		Fear:  clamp(0.4*float64(countAny(content, fearWords)), 0, 1),
	}
	if result.Sentiment == models.SentimentNegative {
		result.Emotions.Sadness = 0.3
	}

	switch {
	case isQuestion(content):
		result.Intent = "question"
		result.RequiresResponse = true
	case result.Sentiment == models.SentimentNegative:
		result.Intent = "complaint"
		result.RequiresResponse = true
	case result.Sentiment == models.SentimentPositive:
		result.Intent = "praise"
	}

	result.Priority = Priority(in.Engagement, in.Followers)
	return result
}

func countAny(content string, words []string) int {
	count := 0
	for _, word := range words {
		if strings.Contains(content, word) {
			count++
		}
	}
	return count
}

func isQuestion(content string) bool {
	if strings.Contains(content, "?") {
		return true
	}
	for _, lead := range questionLeads {
		if strings.HasPrefix(content, lead) {
			return true
		}
	}
	return false
}
