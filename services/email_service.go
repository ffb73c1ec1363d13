// File: /services/email_service.go
package services

import (
	"fmt"
	"html"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"chyrp-api/config"
	"chyrp-api/models"
)

// Mailer sends one message. *gomail.Dialer satisfies it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService notifies post authors about activity on their posts.
// Sending is fire and forget: failures are logged, never returned to the
// request that triggered them.
type EmailService struct {
	cfg     config.SMTPConfig
	siteURL string
	mailer  Mailer
	log     *zap.Logger
}

func NewEmailService(cfg config.SMTPConfig, siteURL string, log *zap.Logger) *EmailService {
	var mailer Mailer
	if cfg.Enabled {
		mailer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return &EmailService{cfg: cfg, siteURL: siteURL, mailer: mailer, log: log}
}

// WithMailer replaces the transport, mainly for tests.
func (es *EmailService) WithMailer(m Mailer) *EmailService {
	es.mailer = m
	return es
}

func (es *EmailService) Enabled() bool {
	return es != nil && es.mailer != nil
}

func (es *EmailService) postURL(postID uint) string {
	return fmt.Sprintf("%s/posts/%d", es.siteURL, postID)
}

func (es *EmailService) newMessage(to, subject string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", es.cfg.FromName, es.cfg.FromEmail))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	return m
}

// NotifyComment tells the author of post that someone commented on it.
// Authors commenting on their own posts are not notified.
func (es *EmailService) NotifyComment(author *models.User, post *models.Post, comment *models.CommentWithAuthor) {
	if !es.Enabled() || author == nil || author.ID == comment.UserID {
		return
	}

	title := post.Title
	if title == "" {
		title = fmt.Sprintf("post #%d", post.ID)
	}
	m := es.newMessage(author.Email, fmt.Sprintf("New comment on %q", title))

	textBody := fmt.Sprintf(`Hello %s,

%s commented on your post %q:

%s

Read it at %s
`, author.Username, comment.Username, title, comment.Content, es.postURL(post.ID))

	htmlBody := fmt.Sprintf(`<p>Hello %s,</p>
<p><strong>%s</strong> commented on your post <a href="%s">%s</a>:</p>
<blockquote>%s</blockquote>`,
		html.EscapeString(author.Username),
		html.EscapeString(comment.Username),
		es.postURL(post.ID),
		html.EscapeString(title),
		html.EscapeString(comment.Content),
	)

	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)
	es.send(m, zap.Uint("post_id", post.ID), zap.Uint("comment_id", comment.ID))
}

// NotifyWebmention tells the author of post that a verified mention arrived.
func (es *EmailService) NotifyWebmention(author *models.User, post *models.Post, mention *models.Webmention) {
	if !es.Enabled() || author == nil {
		return
	}

	m := es.newMessage(author.Email, "Your post was mentioned")

	textBody := fmt.Sprintf(`Hello %s,

%s links to your post %s

Mention type: %s
`, author.Username, mention.SourceURL, es.postURL(post.ID), mention.MentionType)

	htmlBody := fmt.Sprintf(`<p>Hello %s,</p>
<p><a href="%s">%s</a> links to your post <a href="%s">%s</a>.</p>
<p>Mention type: %s</p>`,
		html.EscapeString(author.Username),
		html.EscapeString(mention.SourceURL),
		html.EscapeString(mention.SourceURL),
		es.postURL(post.ID),
		es.postURL(post.ID),
		html.EscapeString(mention.MentionType),
	)

	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)
	es.send(m, zap.Uint("post_id", post.ID), zap.Uint("webmention_id", mention.ID))
}

func (es *EmailService) send(m *gomail.Message, fields ...zap.Field) {
	if err := es.mailer.DialAndSend(m); err != nil {
		es.log.Error("failed to send email", append(fields, zap.Error(err))...)
		return
	}
	es.log.Info("email sent", fields...)
}
