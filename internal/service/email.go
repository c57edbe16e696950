package service

import (
	"fmt"
	"net/smtp"
)

// EmailService отправляет письма пользователям.
type EmailService interface {
	Send(to, subject, body string) error
}

type smtpEmail struct {
	host string
	port string
	from string
}

// NewEmailService возвращает отправителя через обычный SMTP без аутентификации
// (локально — MailHog).
func NewEmailService(host, port, from string) EmailService {
	return &smtpEmail{host: host, port: port, from: from}
}

func (s *smtpEmail) Send(to, subject, body string) error {
	addr := s.host + ":" + s.port
	msg := "From: " + s.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n" +
		body

	if err := smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
