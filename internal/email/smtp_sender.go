package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender envía correos via SMTP.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	useTLS   bool
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		useTLS:   useTLS,
	}, nil
}

func (s *SMTPSender) SendRegistrationOTP(_ context.Context, toEmail string, code string) error {
	body := fmt.Sprintf(otpBodyTemplate, "Verify Your Email",
		"Please verify your email address using the OTP below:", code,
		"This helps us confirm your identity and complete your signup.")
	return s.send(toEmail, "Verify Your Email Address", body)
}

func (s *SMTPSender) SendAccountCreated(_ context.Context, toEmail string) error {
	body := fmt.Sprintf(noticeBodyTemplate, "Welcome Aboard!",
		"Your account has been successfully verified and created.<br><br>You can now log in and start using the app!")
	return s.send(toEmail, "Account Created Successfully", body)
}

func (s *SMTPSender) SendPasswordResetOTP(_ context.Context, toEmail string, code string) error {
	body := fmt.Sprintf(otpBodyTemplate, "Password Reset Request",
		"You requested a password reset. Enter the OTP in the app to reset your password:", code,
		"If you did not request this, please ignore this email.")
	return s.send(toEmail, "Password Reset Request", body)
}

func (s *SMTPSender) SendPasswordChanged(_ context.Context, toEmail string) error {
	body := fmt.Sprintf(noticeBodyTemplate, "Password Changed",
		"Your password has been successfully updated.<br><br>You can now log in with your new password.")
	return s.send(toEmail, "Password Changed Successfully", body)
}

func (s *SMTPSender) send(toEmail, subject, body string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	msg := buildMessage(s.from, s.fromName, toEmail, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.useTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{
			ServerName: s.host,
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			return err
		}
		defer client.Quit()

		if auth != nil {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
		if err := client.Mail(s.from); err != nil {
			return err
		}
		if err := client.Rcpt(toEmail); err != nil {
			return err
		}
		writer, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := writer.Write([]byte(msg)); err != nil {
			_ = writer.Close()
			return err
		}
		return writer.Close()
	}

	return smtp.SendMail(addr, auth, s.from, []string{toEmail}, []byte(msg))
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}

const otpBodyTemplate = `<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 40px; color: #333;">
  <table style="max-width: 600px; margin: auto; background: #ffffff; padding: 40px; border-radius: 8px;">
    <tr>
      <td style="text-align: center; font-size: 24px; font-weight: bold; padding-bottom: 20px; color: #222;">%s</td>
    </tr>
    <tr>
      <td style="font-size: 16px; line-height: 1.6; color: #555;">Hi,<br><br>%s</td>
    </tr>
    <tr>
      <td style="text-align: center; font-size: 28px; font-weight: bold; color: #222; padding: 20px 0;">%s</td>
    </tr>
    <tr>
      <td style="font-size: 14px; line-height: 1.6; color: #999; text-align: center; padding-top: 20px;">%s</td>
    </tr>
  </table>
</body>
`

const noticeBodyTemplate = `<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 40px; color: #333;">
  <table style="max-width: 600px; margin: auto; background: #ffffff; padding: 40px; border-radius: 8px;">
    <tr>
      <td style="text-align: center; font-size: 24px; font-weight: bold; padding-bottom: 20px; color: #222;">%s</td>
    </tr>
    <tr>
      <td style="font-size: 16px; line-height: 1.6; color: #555;">Hi,<br><br>%s</td>
    </tr>
  </table>
</body>
`
