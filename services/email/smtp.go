package emailsvc

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/smtp"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
)

// smtpService delivers through a plain SMTP relay, eg a local postfix
// or a dev mailcatcher.
type smtpService struct {
	addr             string
	hostname         string
	auth             smtp.Auth
	useTLS           bool
	defaultFromEmail mail.Address
	subjPrefix       string
	logger           core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(conf *core.Config, logger core.Logger) *smtpService {
	var auth smtp.Auth
	if conf.SMTP.User != "" {
		auth = smtp.PlainAuth("", conf.SMTP.User, conf.SMTP.Password, conf.SMTP.Host)
	}
	return &smtpService{
		addr:             fmt.Sprintf("%s:%d", conf.SMTP.Host, conf.SMTP.Port),
		hostname:         conf.SMTP.Host,
		auth:             auth,
		useTLS:           conf.SMTP.UseTLS || conf.SMTP.UseSSL,
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[" + conf.AppName + "] ",
		logger:           logger,
	}
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.SendMessage(msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
			}
		}()
	}
}

func (svc smtpService) SendMessage(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return nil
	}

	body, err := buildMIME(svc.defaultFromEmail, svc.subjPrefix, *msg)
	if err != nil {
		return err
	}

	rcpts := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	for _, addrs := range [][]mail.Address{msg.To, msg.Cc, msg.Bcc} {
		for _, a := range addrs {
			rcpts = append(rcpts, a.Address)
		}
	}

	if err = svc.send(rcpts, []byte(body)); err != nil {
		return core.NewTransportError(err)
	}
	return nil
}

func (svc smtpService) send(rcpts []string, body []byte) error {
	c, err := smtp.Dial(svc.addr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if svc.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err = c.StartTLS(&tls.Config{ServerName: svc.hostname}); err != nil {
				return err
			}
		}
	}
	if svc.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err = c.Auth(svc.auth); err != nil {
				return err
			}
		}
	}

	if err = c.Mail(svc.defaultFromEmail.Address); err != nil {
		return err
	}
	for _, rcpt := range rcpts {
		if err = c.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(body); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
