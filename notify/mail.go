package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/models"
	templates "github.com/pawsaarthi/rescue-api/templates/html"
)

const senderName = "PawSaarthi"

// SendGrid delivers notification emails through the SendGrid API
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
	appURL string
}

// NewSendGrid returns a mailer sending as from. When appURL is set, case
// emails link to the case page under it.
func NewSendGrid(apiKey, from, appURL string) *SendGrid {
	return &SendGrid{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(senderName, from),
		appURL: strings.TrimRight(appURL, "/"),
	}
}

// Send renders msg into the branded template and sends it to the user
func (s *SendGrid) Send(ctx context.Context, to models.User, msg Message) error {
	if to.Details.Email == "" {
		return fmt.Errorf("user %s has no email", to.ID)
	}
	content, err := templates.RenderRescueEmail(s.rescueEmail(msg))
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	message := mail.NewSingleEmail(
		s.from,
		msg.Subject,
		mail.NewEmail(to.DisplayName(), to.Details.Email),
		msg.Body,
		content,
	)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", to.Details.Email)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("email sent successfully", "to", to.Details.Email, "subject", msg.Subject)
	return nil
}

func (s *SendGrid) rescueEmail(msg Message) templates.RescueEmail {
	e := templates.RescueEmail{Subject: msg.Subject, Body: msg.Body}
	if msg.Case == nil {
		return e
	}
	e.CaseID = msg.Case.ID
	e.Status = strings.ReplaceAll(string(msg.Case.Status), "_", " ")
	if s.appURL != "" {
		e.Link = s.appURL + "/rescue/" + msg.Case.ID
	}
	return e
}
