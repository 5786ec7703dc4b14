package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/config"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
	Actions    []TeamsAction  `json:"potentialAction,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TeamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []TeamsTarget `json:"targets"`
}

type TeamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

var alertColors = map[string]string{
	"critical": "d13438",
	"urgent":   "ff8c00",
	"info":     "0078d4",
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends a report via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	return s.send("report",
		func() error { return s.postToTeams(s.buildTeamsReport(report)) },
		func() error { return s.sendReportEmail(report) },
	)
}

// SendAlert sends an urgent alert through every configured channel
func (s *Service) SendAlert(alert *models.Alert) error {
	return s.send("alert",
		func() error { return s.postToTeams(s.buildTeamsAlert(alert)) },
		func() error { return s.sendAlertEmail(alert) },
	)
}

func (s *Service) send(kind string, teams, email func() error) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := teams(); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := email(); err != nil {
			logrus.Errorf("Failed to send email %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) postToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsReport(report *models.Report) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: alertColors["info"],
		Title:      report.Title,
		Text:       "```\n" + report.Body + "\n```",
	}

	if len(report.Highlights) > 0 {
		var lines []string
		limit := 5
		if len(report.Highlights) < limit {
			limit = len(report.Highlights)
		}

		for i := 0; i < limit; i++ {
			m := report.Highlights[i]
			lines = append(lines, fmt.Sprintf("**[%s](%s)** - %s (%s, %s priority)",
				truncate(m.Content, 80), m.URL, m.Platform, m.CreatedAt.Format("Jan 2"), m.Priority))
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Needs attention",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) buildTeamsAlert(alert *models.Alert) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: alertColors[alert.Type],
		Title:      alert.Title,
		Text:       alert.Message,
	}

	facts := []TeamsFact{
		{Name: "Severity", Value: alert.Type},
		{Name: "Raised", Value: alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	if len(alert.Reasons) > 0 {
		facts = append(facts, TeamsFact{Name: "Reasons", Value: strings.Join(alert.Reasons, "; ")})
	}
	if len(alert.Actions) > 0 {
		facts = append(facts, TeamsFact{Name: "Recommended", Value: strings.Join(alert.Actions, "; ")})
	}

	section := TeamsSection{Facts: facts, Markdown: true}
	if m := alert.Mention; m != nil {
		section.ActivityTitle = fmt.Sprintf("%s on %s", authorName(m), m.Platform)
		section.ActivitySubtitle = fmt.Sprintf("%s | %s priority | engagement %d", m.Type, m.Priority, m.Engagement.Total())
		section.ActivityText = truncate(m.Content, 300)

		if m.URL != "" {
			message.Actions = append(message.Actions, TeamsAction{
				Type:    "OpenUri",
				Name:    "Open on " + string(m.Platform),
				Targets: []TeamsTarget{{OS: "default", URI: m.URL}},
			})
		}
	}
	message.Sections = append(message.Sections, section)

	return message
}

func (s *Service) sendReportEmail(report *models.Report) error {
	htmlBody, err := renderHTML(reportTemplate, report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}
	return s.sendEmail(report.Title, report.Body, htmlBody)
}

func (s *Service) sendAlertEmail(alert *models.Alert) error {
	htmlBody, err := renderHTML(alertTemplate, alert)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Type), alert.Title)
	return s.sendEmail(subject, buildAlertText(alert), htmlBody)
}

func (s *Service) sendEmail(subject, textBody, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

const emailStyle = `
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .critical { background-color: #d13438; }
        .urgent { background-color: #ff8c00; }
        .mention { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .mention-meta { color: #666; font-size: 0.9em; }
        pre { background-color: #f5f5f5; padding: 15px; border-radius: 5px; white-space: pre-wrap; }
    </style>`

var reportTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>` + emailStyle + `
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <p>{{.Period}} digest generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <pre>{{.Body}}</pre>

    {{if .Highlights}}
    <h2>Needs attention</h2>
    {{range $index, $m := .Highlights}}
        {{if lt $index 10}}
        <div class="mention">
            <div><a href="{{$m.URL}}" target="_blank">{{$m.Content | truncate 200}}</a></div>
            <div class="mention-meta">
                {{$m.Platform}} | {{$m.Priority}} priority | {{$m.CreatedAt.Format "Jan 2, 2006"}}
            </div>
        </div>
        {{end}}
    {{end}}
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the Social Mentions Monitor.</small></p>
</body>
</html>
`

var alertTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>` + emailStyle + `
</head>
<body>
    <div class="header {{.Type}}">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>

    {{if .Reasons}}
    <h2>Why</h2>
    <ul>{{range .Reasons}}<li>{{.}}</li>{{end}}</ul>
    {{end}}

    {{if .Actions}}
    <h2>Recommended actions</h2>
    <ul>{{range .Actions}}<li>{{.}}</li>{{end}}</ul>
    {{end}}

    {{with .Mention}}
    <div class="mention">
        <p>{{.Content | truncate 500}}</p>
        <div class="mention-meta">{{.Platform}} | {{.Type}} | {{.CreatedAt.Format "Jan 2, 2006 15:04"}}</div>
        {{if .URL}}<p><a href="{{.URL}}" target="_blank">Open original</a></p>{{end}}
    </div>
    {{end}}
</body>
</html>
`

func renderHTML(tmpl string, data any) (string, error) {
	t := template.New("email").Funcs(template.FuncMap{
		"truncate": func(length int, s string) string { return truncate(s, length) },
	})

	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func buildAlertText(alert *models.Alert) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("%s\n", alert.Title))
	text.WriteString(fmt.Sprintf("Raised: %s\n\n", alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(alert.Message + "\n")

	if len(alert.Reasons) > 0 {
		text.WriteString("\nWHY\n===\n")
		for _, r := range alert.Reasons {
			text.WriteString(fmt.Sprintf("- %s\n", r))
		}
	}

	if len(alert.Actions) > 0 {
		text.WriteString("\nRECOMMENDED ACTIONS\n===================\n")
		for _, a := range alert.Actions {
			text.WriteString(fmt.Sprintf("- %s\n", a))
		}
	}

	if m := alert.Mention; m != nil {
		text.WriteString("\nITEM\n====\n")
		text.WriteString(fmt.Sprintf("%s | %s | %s\n", m.Platform, m.Type, authorName(m)))
		text.WriteString(truncate(m.Content, 500) + "\n")
		if m.URL != "" {
			text.WriteString(fmt.Sprintf("URL: %s\n", m.URL))
		}
	}

	return text.String()
}

func authorName(m *models.Mention) string {
	switch {
	case m.Author.DisplayName != "":
		return m.Author.DisplayName
	case m.Author.Handle != "":
		return m.Author.Handle
	default:
		return "unknown author"
	}
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length]) + "..."
}
