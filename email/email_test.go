package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyclassified/config"
)

func TestSendBuildsMultipartMessage(t *testing.T) {
	svc := NewService(config.SMTPConfig{Host: "mail.example.com", Port: 2525, From: "noreply@example.com"}, false)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	svc.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a)
		return nil
	}

	err := svc.Send(context.Background(), []string{"bob@example.com"}, "Listing approved", "Your listing is **live**.")
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"bob@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Listing approved\r\n")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "Your listing is **live**.")
	assert.Contains(t, msg, "<strong>live</strong>")
}

func TestSendUsesAuthWhenUserSet(t *testing.T) {
	svc := NewService(config.SMTPConfig{Host: "mail.example.com", Port: 587, User: "u", Password: "p"}, false)
	svc.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.NotNil(t, a)
		return nil
	}

	assert.NoError(t, svc.Send(context.Background(), []string{"bob@example.com"}, "s", "b"))
}

func TestSendWrapsTransportError(t *testing.T) {
	svc := NewService(config.SMTPConfig{Host: "mail.example.com", Port: 25}, false)
	boom := errors.New("connection refused")
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := svc.Send(context.Background(), []string{"bob@example.com"}, "s", "b")
	assert.ErrorIs(t, err, boom)
}

func TestFakeModeDoesNotSend(t *testing.T) {
	svc := NewService(config.SMTPConfig{}, true)
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("fake mode must not reach smtp")
		return nil
	}

	assert.NoError(t, svc.Send(context.Background(), []string{"bob@example.com"}, "s", "b"))
}

func TestSendWithoutRecipients(t *testing.T) {
	svc := NewService(config.SMTPConfig{}, false)
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("no recipients, nothing to send")
		return nil
	}

	assert.NoError(t, svc.Send(context.Background(), nil, "s", "b"))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Send(context.Background(), []string{"a@example.com"}, "hello", "body"))

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Subject)
}
