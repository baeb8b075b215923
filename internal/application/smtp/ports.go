package smtp

import (
	"context"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	smtpapi "github.com/trieb-work/saleor-apps/internal/infrastructure/smtp"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ConfigKey is the metadata key of the serialized RootConfig
const ConfigKey = "smtp-config"

// MessageSender delivers one rendered message.
type MessageSender interface {
	Send(ctx context.Context, in smtpapi.SendInput) error
}

// SenderFactory creates a sender reporting on behalf of a tenant.
type SenderFactory func(saleorAPIURL string) (MessageSender, error)

// TemplateCompiler renders a subject and a body against an event payload.
type TemplateCompiler interface {
	Compile(subject, body string, payload any) (*smtpapi.Compiled, error)
}

// ConfigStore loads and saves the serialized config of one installation.
type ConfigStore interface {
	Load(ctx context.Context, authData *apl.AuthData) (string, error)
	Save(ctx context.Context, authData *apl.AuthData, raw string) error
}

// NewSenderFactory returns a factory over the go-mail sender.
func NewSenderFactory(recorder *telemetry.APICallRecorder) SenderFactory {
	return func(saleorAPIURL string) (MessageSender, error) {
		return smtpapi.NewSender(saleorAPIURL, recorder)
	}
}
