// Package mail はトランザクションメールの送信を提供する。
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Message は送信するプレーンテキストメールを表す。
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config はSMTP接続設定。
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// sendFunc はsmtp.SendMailのシグネチャ。テストで差し替える。
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender はnet/smtpでメールを送信する。
type SMTPSender struct {
	cfg  Config
	send sendFunc
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send はメールを1通送信する。
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("invalid mail header value")
	}

	raw := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", s.cfg.From, msg.To, msg.Subject, msg.Body)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// New はSMTP_HOSTが設定されていればSMTPSenderを返す。未設定の場合はnil。
func New(cfg Config) Sender {
	if cfg.Host == "" {
		return nil
	}
	return NewSMTPSender(cfg)
}
