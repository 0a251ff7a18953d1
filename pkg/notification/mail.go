package notification

import (
	"fmt"
	"net/smtp"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mail handles email notifications for trade events
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	send              sendMailFunc
	log               logger.Logger
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams, log logger.Logger) *Mail {
	return &Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
		send: smtp.SendMail,
		log:  log,
	}
}

// Notify sends an email with the given subject and body
func (m *Mail) Notify(subject, text string) {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	message := fmt.Sprintf(
		"To: \"User\" <%s>\r\nFrom: \"TradePulse\" <%s>\r\nSubject: %s\r\n\r\n%s\r\n",
		m.to,
		m.from,
		subject,
		text,
	)

	err := m.send(
		serverAddress,
		m.auth,
		m.from,
		[]string{m.to},
		[]byte(message),
	)

	if err != nil {
		m.log.WithError(err).Error("notification/mail: failed to send email")
	}
}

// OnEvent mails trade executions, trade errors and lifecycle changes
func (m *Mail) OnEvent(event engine.Event) {
	title, body, ok := Message(event)
	if !ok {
		return
	}
	m.Notify(title, body)
}
