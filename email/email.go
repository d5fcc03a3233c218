package email

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"tinyclassified/config"
)

// Sender delivers a plain text message, written in markdown, to recipients.
type Sender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	host     string
	port     int
	user     string
	password string
	from     string
	fake     bool
	md       goldmark.Markdown
	sendMail sendMailFunc
}

func NewService(cfg config.SMTPConfig, fake bool) *Service {
	return &Service{
		host:     cfg.Host,
		port:     cfg.Port,
		user:     cfg.User,
		password: cfg.Password,
		from:     cfg.From,
		fake:     fake,
		md:       goldmark.New(),
		sendMail: smtp.SendMail,
	}
}

func (e *Service) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	if e.fake {
		log.Printf("Fake email to %s: %s\n%s", strings.Join(recipients, ", "), subject, body)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message, err := e.buildMessage(recipients, subject, body)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	if err := e.sendMail(addr, auth, e.from, recipients, message); err != nil {
		return fmt.Errorf("sending email to %s: %w", strings.Join(recipients, ", "), err)
	}
	return nil
}

// buildMessage renders a multipart/alternative message with the body as
// plain text and as HTML converted from markdown.
func (e *Service) buildMessage(recipients []string, subject, body string) ([]byte, error) {
	var html bytes.Buffer
	if err := e.md.Convert([]byte(body), &html); err != nil {
		return nil, fmt.Errorf("rendering email body: %w", err)
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	for _, part := range []struct {
		contentType string
		content     []byte
	}{
		{"text/plain; charset=UTF-8", []byte(body)},
		{"text/html; charset=UTF-8", html.Bytes()},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(part.content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(parts.Bytes())
	return msg.Bytes(), nil
}

type Message struct {
	Recipients []string
	Subject    string
	Body       string
}

// Recorder is a Sender that keeps messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Send(_ context.Context, recipients []string, subject, body string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{
		Recipients: append([]string(nil), recipients...),
		Subject:    subject,
		Body:       body,
	})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
