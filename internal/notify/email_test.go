package notify

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"tools.zach/dev/presencewatch/internal/presence"
)

// smtpServer is a minimal SMTP responder that records one message.
type smtpServer struct {
	ln       net.Listener
	startTLS bool
	cmds     chan string
	data     chan string
}

func newSMTPServer(t *testing.T, startTLS bool) *smtpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &smtpServer{ln: ln, startTLS: startTLS, cmds: make(chan string, 32), data: make(chan string, 1)}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *smtpServer) hostPort(t *testing.T) (string, int) {
	host, port, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

func (s *smtpServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP test")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		s.cmds <- verb
		switch verb {
		case "EHLO", "HELO":
			if s.startTLS {
				reply("250-localhost")
				reply("250 STARTTLS")
			} else {
				reply("250-localhost")
				reply("250 8BITMIME")
			}
		case "MAIL", "RCPT", "RSET", "NOOP":
			reply("250 OK")
		case "DATA":
			reply("354 end with .")
			var msg strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				msg.WriteString(l)
			}
			s.data <- msg.String()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestEmailSend(t *testing.T) {
	srv := newSMTPServer(t, false)
	host, port := srv.hostPort(t)

	s := NewEmailSink(EmailConfig{
		Host: host, Port: port,
		Sender: "watch@example.com", Receiver: "me@example.com",
		Timeout: 5 * time.Second,
	})
	ev := presence.NewEvent(presence.Test, time.Date(2024, 4, 21, 16, 15, 0, 0, time.UTC))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Send(ctx, NewPayload("Major Nelson", ev)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var msg string
	select {
	case msg = <-srv.data:
	case <-time.After(5 * time.Second):
		t.Fatal("server received no message")
	}
	for _, want := range []string{
		"From: watch@example.com\r\n",
		"To: me@example.com\r\n",
		"Subject: presencewatch: test notification (user: Major Nelson)\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"This is a test notification for Xbox user Major Nelson.\r\n",
		"Timestamp: Sun 21 Apr 2024, 16:15:00\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestEmailStartTLSUnsupported(t *testing.T) {
	srv := newSMTPServer(t, false)
	host, port := srv.hostPort(t)

	s := NewEmailSink(EmailConfig{
		Host: host, Port: port, StartTLS: true,
		Sender: "a@example.com", Receiver: "b@example.com",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Send(ctx, Payload{Kind: presence.Test})
	if err == nil || !strings.Contains(err.Error(), "STARTTLS") {
		t.Fatalf("err = %v, want STARTTLS error", err)
	}
}

func TestEmailDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	p, _ := strconv.Atoi(port)

	s := NewEmailSink(EmailConfig{Host: "127.0.0.1", Port: p, Sender: "a@x", Receiver: "b@x"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Send(ctx, Payload{Kind: presence.Test}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestBuildMessage(t *testing.T) {
	date := time.Date(2024, 4, 21, 16, 15, 0, 0, time.UTC)
	msg := string(buildMessage("a@x", "b@x", "Xbox user Jörg is now online", "line1\nline2", date))

	if !strings.Contains(msg, "Subject: =?utf-8?q?") {
		t.Errorf("non-ASCII subject not encoded:\n%s", msg)
	}
	if !strings.Contains(msg, "\r\n\r\nline1\r\nline2\r\n") {
		t.Errorf("body not CRLF terminated:\n%q", msg)
	}
	if !strings.Contains(msg, "Date: Sun, 21 Apr 2024 16:15:00 +0000\r\n") {
		t.Errorf("date header wrong:\n%s", msg)
	}
	if strings.Contains(strings.ReplaceAll(msg, "\r\n", ""), "\n") {
		t.Error("bare LF in message")
	}
}

func TestEmailSinkMetadata(t *testing.T) {
	s := NewEmailSink(EmailConfig{Timeout: 7 * time.Second})
	if s.Name() != "email" {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.Timeout() != 7*time.Second {
		t.Errorf("Timeout() = %v", s.Timeout())
	}
}
