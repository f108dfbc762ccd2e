package mail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/go-gomail/gomail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	to, subject, body string
	err               error
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func TestResetMailerUsesSender(t *testing.T) {
	dir := t.TempDir()
	sender := &recordingSender{}
	m := NewResetMailerWithSender(sender, NewLinkLog(dir))

	require.NoError(t, m.SendResetLink(context.Background(), "a@example.com", "http://x/reset-password/abc"))
	assert.Equal(t, "a@example.com", sender.to)
	assert.Equal(t, ResetSubject, sender.subject)
	assert.Contains(t, sender.body, "http://x/reset-password/abc")
	assert.NoFileExists(t, filepath.Join(dir, LinkLogFile))
}

func TestResetMailerFallsBackToLinkLog(t *testing.T) {
	dir := t.TempDir()
	links := NewLinkLog(dir)
	links.now = func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC) }

	m := NewResetMailerWithSender(&recordingSender{err: errors.New("connection refused")}, links)
	require.NoError(t, m.SendResetLink(context.Background(), "b@example.com", "http://x/reset-password/def"))
	require.NoError(t, m.SendResetLink(context.Background(), "c@example.com", "http://x/reset-password/ghi"))

	data, err := os.ReadFile(links.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-02-03T04:05:06Z | b@example.com | http://x/reset-password/def", lines[0])
}

func TestResetMailerWithoutSMTP(t *testing.T) {
	dir := t.TempDir()
	m := NewResetMailer(configs.MailConfig{}, dir)

	require.NoError(t, m.SendResetLink(context.Background(), "d@example.com", "link"))
	assert.FileExists(t, filepath.Join(dir, LinkLogFile))
}

func TestResetMailerBothFail(t *testing.T) {
	links := NewLinkLog(filepath.Join(t.TempDir(), "missing", "dir"))
	m := NewResetMailerWithSender(nil, links)
	assert.Error(t, m.SendResetLink(context.Background(), "e@example.com", "link"))
}

func TestSMTPSenderTimeout(t *testing.T) {
	s := NewSMTPSender(configs.MailConfig{SMTPHost: "localhost", SMTPPort: 25, Timeout: 20 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)
	s.send = func(*gomail.Message) error {
		<-block
		return nil
	}

	err := s.Send(context.Background(), "f@example.com", "subject", "body")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender(configs.MailConfig{SMTPHost: "localhost", SMTPPort: 25, SMTPUser: "tales@example.com"})

	var got *gomail.Message
	s.send = func(m *gomail.Message) error {
		got = m
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "g@example.com", "hello", "world"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"tales@example.com"}, got.GetHeader("From"))
	assert.Equal(t, []string{"g@example.com"}, got.GetHeader("To"))
}
