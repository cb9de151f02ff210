package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

//go:embed config/digest-email.html
var defaultDigestTemplate string

const defaultDigestSubject = "Your Personalized News"

// Mailer hands a selection of articles to a user
type Mailer interface {
	Deliver(ctx context.Context, email string, articles []Article) error
}

// sendgridClient is the part of the SendGrid client the mailer uses
type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends digests through the SendGrid v3 mail API
type SendGridMailer struct {
	client   sendgridClient
	template *template.Template
	from     *mail.Email
	subject  string
}

// NewSendGridMailer creates a mailer sending from fromEmail
func NewSendGridMailer(apiKey, fromEmail, fromName, subject string) (*SendGridMailer, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid API key is required")
	}
	if fromEmail == "" {
		return nil, errors.New("sender email is required")
	}
	return newSendGridMailer(sendgrid.NewSendClient(apiKey), fromEmail, fromName, subject)
}

func newSendGridMailer(client sendgridClient, fromEmail, fromName, subject string) (*SendGridMailer, error) {
	tmpl, err := template.New("digest").Parse(defaultDigestTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing digest template: %w", err)
	}
	if subject == "" {
		subject = defaultDigestSubject
	}
	return &SendGridMailer{
		client:   client,
		template: tmpl,
		from:     mail.NewEmail(fromName, fromEmail),
		subject:  subject,
	}, nil
}

// Deliver implements Mailer
func (m *SendGridMailer) Deliver(ctx context.Context, email string, articles []Article) error {
	html, err := m.renderHTML(articles)
	if err != nil {
		return err
	}

	message := mail.NewSingleEmail(m.from, m.subject, mail.NewEmail("", email), renderPlain(articles), html)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return newError(KindUpstreamUnavailable, "send digest", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(KindUpstreamUnavailable, "send digest", "", &HTTPError{StatusCode: resp.StatusCode, URL: "sendgrid mail send"})
	}
	return nil
}

func (m *SendGridMailer) renderHTML(articles []Article) (string, error) {
	var buf bytes.Buffer
	if err := m.template.Execute(&buf, struct{ Articles []Article }{articles}); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}
	return buf.String(), nil
}

func renderPlain(articles []Article) string {
	var b strings.Builder
	for i, article := range articles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(article.Title)
		b.WriteString("\n")
		b.WriteString(article.Body)
		if article.HasURL() {
			b.WriteString("\nRead more: ")
			b.WriteString(article.URL)
		}
	}
	return b.String()
}
