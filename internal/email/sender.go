package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Message is an outbound email. HTML is optional; when empty the plain-text
// body is reused with newlines converted to line breaks.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// SendResult reports a delivery attempt. Note carries a human-readable
// qualifier for mock deliveries.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Note      string `json:"note,omitempty"`
}

// Sender delivers outbound mail.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
	Name() string
}

// SMTPConfig is the runtime mailbox configuration.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	SenderName string
}

// SMTPSender delivers over authenticated TLS SMTP.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.SenderName == "" {
		cfg.SenderName = "NexusFlow AI"
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.Username, s.cfg.SenderName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)

	html := msg.HTML
	if html == "" {
		html = strings.ReplaceAll(msg.Text, "\n", "<br>")
	}
	m.AddAlternative("text/html", html)

	if err := s.dialer.DialAndSend(m); err != nil {
		return SendResult{}, fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	id := uuid.NewString()
	slog.Info("email sent", "to", msg.To, "subject", msg.Subject, "message_id", id)
	return SendResult{Success: true, MessageID: id}, nil
}

// MockSender logs the message and reports success without delivering.
// Used until a real mailbox is configured and in tests.
type MockSender struct {
	mu   sync.Mutex
	sent []Message
}

func NewMockSender() *MockSender { return &MockSender{} }

func (m *MockSender) Name() string { return "mock" }

func (m *MockSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	slog.Info("mock email send", "to", msg.To, "subject", msg.Subject)
	return SendResult{
		Success:   true,
		MessageID: "mock-" + uuid.NewString(),
		Note:      "mock mode: email not actually delivered",
	}, nil
}

// Sent returns a copy of every message handed to the mock.
func (m *MockSender) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Manager holds the active sender and supports runtime reconfiguration
// from the mailbox settings endpoint.
type Manager struct {
	mu     sync.RWMutex
	active Sender
}

func NewManager(initial Sender) *Manager {
	if initial == nil {
		initial = NewMockSender()
	}
	return &Manager{active: initial}
}

func (m *Manager) Send(ctx context.Context, msg Message) (SendResult, error) {
	m.mu.RLock()
	sender := m.active
	m.mu.RUnlock()
	return sender.Send(ctx, msg)
}

func (m *Manager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.Name()
}

// Configure swaps in an SMTP sender when credentials are present, falling
// back to the mock otherwise. Returns the name of the new active sender.
func (m *Manager) Configure(cfg SMTPConfig) string {
	var next Sender
	if cfg.Username != "" && cfg.Password != "" {
		next = NewSMTPSender(cfg)
	} else {
		next = NewMockSender()
	}

	m.mu.Lock()
	m.active = next
	m.mu.Unlock()

	slog.Info("email sender reconfigured", "sender", next.Name(), "host", cfg.Host)
	return next.Name()
}
