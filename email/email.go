// Package email sends newsletter emails via SendGrid.
package email

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender handles sending emails via SendGrid.
type Sender struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

// NewSender creates a new email sender.
func NewSender(apiKey, fromName, fromEmail string) *Sender {
	return &Sender{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// SendWelcomeEmail confirms a newsletter subscription.
func (s *Sender) SendWelcomeEmail(recipientEmail, siteURL string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	subject := "Bienvenue sur Rapport Honnête"
	to := mail.NewEmail(recipientEmail, recipientEmail)

	plainText := fmt.Sprintf(`Bonjour,

Merci de vous être inscrit à la newsletter de Rapport Honnête.

Vous recevrez nos prochains rapports d'honnêteté : le vrai avis des utilisateurs, sans filtre marketing.

Découvrez les derniers rapports : %s

À bientôt,
L'équipe Rapport Honnête`, siteURL)

	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Bienvenue</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #1a73e8; color: white; padding: 20px; border-radius: 5px 5px 0 0; text-align: center; }
        .content { background-color: #f9f9f9; padding: 30px; border: 1px solid #ddd; }
        .button { display: inline-block; background-color: #1a73e8; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { padding: 20px; text-align: center; font-size: 0.9em; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Bienvenue !</h1>
    </div>
    <div class="content">
        <p>Bonjour,</p>
        <p>Merci de vous être inscrit à la newsletter de <strong>Rapport Honnête</strong>.</p>
        <p>Vous recevrez nos prochains rapports d'honnêteté : le vrai avis des utilisateurs, sans filtre marketing.</p>
        <p style="text-align: center;">
            <a href="%s" class="button" style="color: white;">Voir les derniers rapports</a>
        </p>
    </div>
    <div class="footer">
        <p>À bientôt,<br>L'équipe Rapport Honnête</p>
    </div>
</body>
</html>`, siteURL)

	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
}
