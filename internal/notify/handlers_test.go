package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/gomail.v2"

	"github.com/nhle/deadline-tracker/internal/model"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestMailHandler(t *testing.T) {
	sender := &fakeSender{}
	h := NewMailHandler(model.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "bot@example.com", To: "me@example.com"})
	h.sender = sender

	n := model.Notification{ID: "n1", Subject: "REMINDER: X due in 1 hour", Body: "body"}
	require.NoError(t, h.HandleNotification(context.Background(), n))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"REMINDER: X due in 1 hour"}, sender.sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"me@example.com"}, sender.sent[0].GetHeader("To"))

	sender.err = errors.New("dial tcp: refused")
	assert.Error(t, h.HandleNotification(context.Background(), n))
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewLogHandler(zap.New(core))

	n := model.Notification{ID: "n1", DeadlineID: "dl_1", Subject: "REMINDER: X due in 1 hour"}
	require.NoError(t, h.HandleNotification(context.Background(), n))

	entries := logs.FilterMessage("REMINDER: X due in 1 hour").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "dl_1", entries[0].ContextMap()["deadline_id"])
}

func TestLogHandler_NilLogger(t *testing.T) {
	h := NewLogHandler(nil)
	assert.NoError(t, h.HandleNotification(context.Background(), model.Notification{ID: "n1"}))
}
