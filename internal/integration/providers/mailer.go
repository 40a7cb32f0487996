package providers

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// Mailer sends email through a configured SMTP relay. The relay host and
// default sender come from the catalog; organizations may override the
// SMTP login through the connect flow.
type Mailer struct {
	*integration.BaseIntegration
	host        string
	port        string
	fromAddress string
	defaultUser string
	defaultPass string
}

// NewMailer builds the SMTP adapter.
func NewMailer(cfg integration.ProviderConfig) (integration.Integration, error) {
	m := &Mailer{
		host:        cfg.Extra["smtp_host"],
		port:        withDefault(cfg.Extra["smtp_port"], "587"),
		fromAddress: cfg.Extra["from_address"],
		defaultUser: cfg.Credentials.Username,
		defaultPass: cfg.Credentials.Password,
	}
	m.BaseIntegration = integration.NewBaseIntegration(integration.Descriptor{
		ID:          "mailer",
		DisplayName: "Email",
		Description: "Send email through the configured SMTP relay.",
		AuthType:    integration.AuthBasic,
		RateLimit:   integration.RateLimit{Requests: 30, Per: "minute"},
	})
	m.registerActions()
	return m, nil
}

func (m *Mailer) registerActions() {
	m.RegisterAction(integration.ActionDefinition{
		ID:          "send_email",
		Name:        "Send Email",
		Description: "Send an email message.",
		Inputs: []integration.Field{
			{Name: "to", Type: integration.FieldArray, Required: true, Description: "Recipient addresses"},
			{Name: "cc", Type: integration.FieldArray},
			{Name: "bcc", Type: integration.FieldArray},
			{Name: "subject", Type: integration.FieldString, Required: true},
			{Name: "body", Type: integration.FieldString, Required: true},
			{Name: "body_type", Type: integration.FieldString, Description: "text or html"},
		},
		Outputs: []integration.Field{
			{Name: "message_id", Type: integration.FieldString},
			{Name: "sent_at", Type: integration.FieldString},
			{Name: "recipients", Type: integration.FieldNumber},
		},
	}, m.sendEmail)
}

// Authenticate stores an SMTP login for the organization and confirms the
// relay answers.
func (m *Mailer) Authenticate(ctx context.Context, params map[string]interface{}) (*integration.Credential, error) {
	username := stringInput(params, "username")
	password := stringInput(params, "password")
	if username == "" || password == "" {
		return nil, errors.Validation("username and password are required")
	}

	cred := &integration.Credential{
		Username:    username,
		AccessToken: password,
	}
	if from := stringInput(params, "from_address"); from != "" {
		cred.Extra = map[string]string{"from_address": from}
	}
	m.SetCredentials(cred)

	ok, err := m.ValidateCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ServiceUnavailable("smtp relay did not answer")
	}
	return cred, nil
}

// ValidateCredentials dials the relay and exchanges a greeting. SMTP has no
// credential probe short of sending mail, so reachability is the check.
func (m *Mailer) ValidateCredentials(ctx context.Context) (bool, error) {
	if m.host == "" {
		return false, errors.Internal("mailer has no smtp host configured")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.host, m.port))
	if err != nil {
		return false, nil
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return false, nil
	}
	defer client.Close()

	return true, nil
}

func (m *Mailer) sendEmail(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	to := stringSliceInput(inputs, "to")
	cc := stringSliceInput(inputs, "cc")
	bcc := stringSliceInput(inputs, "bcc")
	if len(to) == 0 {
		return nil, errors.Validation("at least one recipient is required")
	}

	subject := stringInput(inputs, "subject")
	body := stringInput(inputs, "body")
	contentType := "text/plain"
	if stringInput(inputs, "body_type") == "html" {
		contentType = "text/html"
	}

	from := m.sender()
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	if len(cc) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(cc, ", ")))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", contentType))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	recipients := append(append(append([]string{}, to...), cc...), bcc...)

	addr := net.JoinHostPort(m.host, m.port)
	if err := smtp.SendMail(addr, m.auth(), from, recipients, []byte(msg.String())); err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstream, "failed to send email")
	}

	return map[string]interface{}{
		"message_id": fmt.Sprintf("%d@%s", time.Now().UnixNano(), m.host),
		"sent_at":    time.Now().UTC().Format(time.RFC3339),
		"recipients": len(recipients),
	}, nil
}

// auth picks the per-organization login when one is connected, falling back
// to the catalog login. A relay with neither sends unauthenticated.
func (m *Mailer) auth() smtp.Auth {
	if cred := m.Credentials(); cred != nil && cred.Username != "" {
		return smtp.PlainAuth("", cred.Username, cred.AccessToken, m.host)
	}
	if m.defaultUser != "" {
		return smtp.PlainAuth("", m.defaultUser, m.defaultPass, m.host)
	}
	return nil
}

// sender resolves the From address: credential override, then catalog, then
// the SMTP login itself.
func (m *Mailer) sender() string {
	if cred := m.Credentials(); cred != nil && cred.Extra["from_address"] != "" {
		return cred.Extra["from_address"]
	}
	if m.fromAddress != "" {
		return m.fromAddress
	}
	if cred := m.Credentials(); cred != nil && cred.Username != "" {
		return cred.Username
	}
	return m.defaultUser
}
