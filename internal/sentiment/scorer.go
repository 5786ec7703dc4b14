package sentiment

import (
	"fmt"

	"github.com/azure/social-mentions-monitor/internal/models"
)

// Urgency reasons and the action recommended for each
const (
	ReasonVeryNegative     = "Very negative sentiment detected"
	ReasonStrongEmotion    = "Strong anger or fear detected"
	ReasonViralComplaint   = "Complaint with significant engagement"
	ReasonCriticalPriority = "Critical priority item"

	ActionVeryNegative     = "Respond promptly with an apology and a path to resolution"
	ActionStrongEmotion    = "Escalate to a senior community manager before replying"
	ActionViralComplaint   = "Acknowledge publicly and move the conversation to a private channel"
	ActionCriticalPriority = "Notify the social media lead and prepare an official response"
)

// Priority is the engagement and reach heuristic used before an item has
// been classified
func Priority(engagement models.Engagement, followers int) models.Priority {
	total := engagement.Total()

	switch {
	case total > 1000 || followers > 100000:
		return models.PriorityCritical
	case total > 100 || followers > 10000:
		return models.PriorityHigh
	case total > 10 || followers > 1000:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Urgency is the alerting signal for one item
type Urgency struct {
	IsUrgent bool
	Reasons  []string
	Actions  []string
}

func (u *Urgency) add(reason, action string) {
	u.IsUrgent = true
	u.Reasons = append(u.Reasons, reason)
	u.Actions = append(u.Actions, action)
}

// CheckUrgency evaluates the fixed urgency triggers
func CheckUrgency(m *models.Mention) Urgency {
	var u Urgency

	if m.SentimentScore != nil && *m.SentimentScore < -0.6 {
		u.add(ReasonVeryNegative, ActionVeryNegative)
	}
	if m.Emotions != nil && (m.Emotions.Anger > 0.7 || m.Emotions.Fear > 0.7) {
		u.add(ReasonStrongEmotion, ActionStrongEmotion)
	}
	if m.Intent == "complaint" && m.Engagement.Total() > 50 {
		u.add(ReasonViralComplaint, ActionViralComplaint)
	}
	if m.Priority == models.PriorityCritical {
		u.add(ReasonCriticalPriority, ActionCriticalPriority)
	}

	return u
}

// CheckAlert extends CheckUrgency with the tenant's configured floors:
// negative items above the engagement floor, and negative items from
// authors above the influencer floor.
func CheckAlert(m *models.Mention, t models.Thresholds) Urgency {
	u := CheckUrgency(m)

	negative := m.SentimentScore != nil && *m.SentimentScore <= t.NegativeSentimentFloor
	if !negative {
		return u
	}

	if t.EngagementFloor > 0 && m.Engagement.Total() >= t.EngagementFloor {
		u.add(fmt.Sprintf("Negative item above engagement floor (%d)", t.EngagementFloor), ActionViralComplaint)
	}
	if t.InfluencerFollowers > 0 && m.Author.Followers >= t.InfluencerFollowers {
		u.add(fmt.Sprintf("Negative item from influencer (%d followers)", m.Author.Followers), ActionStrongEmotion)
	}

	return u
}

// Apply writes a classification onto m. The classifier priority replaces
// any heuristic value.
func Apply(m *models.Mention, c models.Classification) {
	score := c.Score
	emotions := c.Emotions

	m.Sentiment = c.Sentiment
	m.SentimentScore = &score
	m.Emotions = &emotions
	m.Intent = c.Intent
	m.RequiresResponse = c.RequiresResponse
	m.Priority = c.Priority
	m.PrioritySource = models.PrioritySourceClassifier
}

// ApplyHeuristic sets the heuristic priority unless the classifier has
// already written one
func ApplyHeuristic(m *models.Mention) {
	if m.IsClassified() {
		return
	}
	m.Priority = Priority(m.Engagement, m.Author.Followers)
	m.PrioritySource = models.PrioritySourceHeuristic
}
