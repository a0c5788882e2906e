package email

import (
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/campbase/server/internal/config"
)

// Service sends transactional mail through Resend. With email disabled it
// degrades to logging, so local and test runs need no API key.
type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	limiter      *rate.Limiter
	templates    *template.Template
	logger       zerolog.Logger
}

// DecisionData renders into the payment decision template.
type DecisionData struct {
	FirstName   string
	Approved    bool
	Note        string
	CurrentYear int
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	svc := &Service{
		config:    cfg,
		templates: template.Must(template.New("email").Parse(decisionTemplate)),
		// Resend's free tier allows ~2 requests/second; smooth sends instead
		// of failing them.
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendPaymentDecision notifies a registrant that their payment proof was
// approved or rejected.
func (s *Service) SendPaymentDecision(ctx context.Context, to, firstName string, approved bool, note string) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Bool("approved", approved).
			Msg("email service disabled, skipping decision email")
		return nil
	}

	data := DecisionData{
		FirstName:   firstName,
		Approved:    approved,
		Note:        note,
		CurrentYear: time.Now().Year(),
	}
	htmlBody, err := s.renderDecision(data)
	if err != nil {
		return fmt.Errorf("render decision template: %w", err)
	}

	subject := "Your payment has been verified"
	if !approved {
		subject = "There was a problem with your payment"
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limiter: %w", err)
	}
	if err := s.sendViaResend(ctx, to, subject, htmlBody); err != nil {
		return err
	}

	s.logger.Info().
		Str("to", to).
		Bool("approved", approved).
		Msg("decision email sent")
	return nil
}

func (s *Service) renderDecision(data DecisionData) (string, error) {
	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// validateEmailAddress checks format and rejects header injection attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

const decisionTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Dear {{.FirstName}},</p>
  {{if .Approved}}
  <p>Your payment has been verified and your registration is confirmed. We look forward to seeing you.</p>
  {{else}}
  <p>We could not verify your payment. Please contact the organizing team or submit a new payment proof.</p>
  {{end}}
  {{if .Note}}
  <p>Note from the team: {{.Note}}</p>
  {{end}}
  <p style="color: #888; font-size: 12px;">&copy; {{.CurrentYear}} Campbase</p>
</body>
</html>`
