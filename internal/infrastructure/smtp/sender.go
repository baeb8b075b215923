// Package smtp renders message templates and delivers them over SMTP.
package smtp

import (
	"context"
	"time"

	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/smtp"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// Error codes
const (
	CodeInvalidAddress = "SMTP_INVALID_ADDRESS"
	CodeDeliveryFailed = "SMTP_DELIVERY_FAILED"
)

const defaultTimeout = 30 * time.Second

// NewRecorder builds the span and counter helper of SMTP senders.
func NewRecorder(meter metric.Meter) (*telemetry.APICallRecorder, error) {
	return telemetry.NewAPICallRecorder(telemetry.APICallConfig{
		Vendor:         "SMTP",
		PeerService:    "smtp",
		CounterName:    "saleor.app.smtp.messages",
		Description:    "The number of messages sent over SMTP",
		EnvironmentKey: "smtp.encryption",
		Meter:          meter,
	})
}

// SendInput is one message.
type SendInput struct {
	Server    domain.Server
	FromName  string
	FromEmail string
	To        string
	Subject   string
	HTML      string
}

// Sender delivers messages, one connection per message.
type Sender struct {
	tenant   string
	timeout  time.Duration
	recorder *telemetry.APICallRecorder
}

// NewSender creates a sender reporting for tenant.
func NewSender(tenant string, recorder *telemetry.APICallRecorder) (*Sender, error) {
	if recorder == nil {
		var err error
		if recorder, err = NewRecorder(nil); err != nil {
			return nil, err
		}
	}
	return &Sender{tenant: tenant, timeout: defaultTimeout, recorder: recorder}, nil
}

// Send builds the message and delivers it.
func (s *Sender) Send(ctx context.Context, in SendInput) error {
	msg, err := buildMessage(in)
	if err != nil {
		return err
	}
	return s.recorder.Do(ctx, telemetry.APICall{
		Operation:   "send",
		Method:      "send_email",
		Environment: string(in.Server.Encryption),
		Tenant:      s.tenant,
		Attributes:  []attribute.KeyValue{attribute.String("server.address", in.Server.Host)},
	}, func(ctx context.Context) error {
		client, err := mail.NewClient(in.Server.Host, clientOptions(in.Server, s.timeout)...)
		if err != nil {
			return shared.NewServerError(CodeDeliveryFailed, "Invalid SMTP client settings", err)
		}
		if err := client.DialAndSendWithContext(ctx, msg); err != nil {
			return shared.NewServerError(CodeDeliveryFailed, "Failed to send email", err)
		}
		return nil
	})
}

func buildMessage(in SendInput) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(in.FromName, in.FromEmail); err != nil {
		return nil, shared.NewClientError(CodeInvalidAddress, "Invalid sender address", err)
	}
	if err := msg.To(in.To); err != nil {
		return nil, shared.NewClientError(CodeInvalidAddress, "Invalid recipient address", err)
	}
	msg.Subject(in.Subject)
	msg.SetBodyString(mail.TypeTextHTML, in.HTML)
	return msg, nil
}

func clientOptions(server domain.Server, timeout time.Duration) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(server.Port),
		mail.WithTimeout(timeout),
	}
	switch server.Encryption {
	case domain.EncryptionSSL:
		opts = append(opts, mail.WithSSL())
	case domain.EncryptionTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if server.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(server.User),
			mail.WithPassword(server.Password),
		)
	}
	return opts
}
