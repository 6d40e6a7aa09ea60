package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
)

// sendMailHook and sendMailTLSHook allow tests to override SMTP sending.
var sendMailHook = smtp.SendMail
var sendMailTLSHook = sendMailTLS

// Email sends the report as a single HTML mail. Exactly one recipient is
// supported; the upstream contract never needed more.
type Email struct {
	Host     string
	Port     int
	UseTLS   bool
	User     string
	Pass     string
	Sender   string
	Receiver string
}

func (e *Email) Name() string { return "Email" }

// Send connects, authenticates and delivers the mail. UseTLS selects an
// implicit-TLS connection (typically port 465) over the plain smtp.SendMail
// path (which still negotiates STARTTLS when the server offers it).
func (e *Email) Send(ctx context.Context, msg Message) error {
	_ = ctx
	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	auth := smtp.PlainAuth("", e.User, e.Pass, e.Host)
	payload := e.buildMessage(msg)
	if e.UseTLS {
		return sendMailTLSHook(addr, e.Host, auth, e.Sender, []string{e.Receiver}, payload)
	}
	return sendMailHook(addr, auth, e.Sender, []string{e.Receiver}, payload)
}

func (e *Email) buildMessage(msg Message) []byte {
	header := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		e.Sender, e.Receiver, msg.Title,
	)
	return []byte(header + msg.HTML())
}

// sendMailTLS mirrors smtp.SendMail over an implicit-TLS connection.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	if err := c.Auth(auth); err != nil {
		return err
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
