package mailer

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
)

// fakeSMTP speaks just enough SMTP for net/smtp to deliver one message.
type fakeSMTP struct {
	ln     net.Listener
	mu     sync.Mutex
	data   []string
	silent bool
}

func startFakeSMTP(t *testing.T, silent bool) *fakeSMTP {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSMTP{ln: ln, silent: silent}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	if s.silent {
		time.Sleep(2 * time.Second)
		return
	}

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 localhost ESMTP")

	inData := false
	var body strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if inData {
			if line == ".\r\n" {
				inData = false
				s.mu.Lock()
				s.data = append(s.data, body.String())
				s.mu.Unlock()
				reply("250 queued")
				continue
			}
			body.WriteString(line)
			continue
		}

		switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
			reply("250 ok")
		case cmd == "DATA":
			inData = true
			reply("354 go ahead")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func (s *fakeSMTP) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.data...)
}

func newTestMailer(t *testing.T, addr string, timeout time.Duration) *SMTPMailer {
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return NewSMTPMailer(&config.EmailConfig{
		Enabled: true,
		Host:    host,
		Port:    p,
		From:    "no-reply@scribe.test",
		Timeout: timeout,
	}, zap.NewNop())
}

func TestSMTPMailer_Delivers(t *testing.T) {
	srv := startFakeSMTP(t, false)
	m := newTestMailer(t, srv.ln.Addr().String(), 2*time.Second)

	ok := m.Send(context.Background(), "ada@example.com", TemplateOneTimeCode, map[string]string{
		"code":       "123456",
		"expires_in": "10 minutes",
	})
	require.True(t, ok)

	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Subject: Your Scribe verification code: 123456")
	assert.Contains(t, msgs[0], "To: ada@example.com")
	assert.Contains(t, msgs[0], "It expires in 10 minutes.")
}

func TestSMTPMailer_TimeoutReportsUndelivered(t *testing.T) {
	srv := startFakeSMTP(t, true)
	m := newTestMailer(t, srv.ln.Addr().String(), 100*time.Millisecond)

	start := time.Now()
	ok := m.Send(context.Background(), "ada@example.com", TemplateOneTimeCode, map[string]string{"code": "1"})
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSMTPMailer_UnknownTemplate(t *testing.T) {
	m := newTestMailer(t, "127.0.0.1:1", time.Second)
	assert.False(t, m.Send(context.Background(), "ada@example.com", "nope", nil))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		params   map[string]string
		want     string
	}{
		{
			name:     "code with name",
			template: TemplateOneTimeCode,
			params:   map[string]string{"code": "654321", "name": "Ada", "action": "sign in", "expires_in": "10 minutes"},
			want:     "Hello Ada,",
		},
		{
			name:     "code without name",
			template: TemplateOneTimeCode,
			params:   map[string]string{"code": "654321"},
			want:     "Hello there,",
		},
		{
			name:     "password changed",
			template: TemplatePasswordChanged,
			want:     "every other session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body, err := render(tt.template, tt.params)
			require.NoError(t, err)
			assert.Contains(t, body, tt.want)
		})
	}
}

func TestDisabled(t *testing.T) {
	assert.False(t, NewDisabled(zap.NewNop()).Send(context.Background(), "a@b.c", TemplateOneTimeCode, nil))
}
