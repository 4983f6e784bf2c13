package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para las notificaciones por correo. Los envíos
// son fire-and-forget: un fallo se registra pero no revierte el cambio de
// estado que lo disparó.
type Sender interface {
	SendRegistrationOTP(ctx context.Context, toEmail string, code string) error
	SendAccountCreated(ctx context.Context, toEmail string) error
	SendPasswordResetOTP(ctx context.Context, toEmail string, code string) error
	SendPasswordChanged(ctx context.Context, toEmail string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) fail() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendRegistrationOTP(context.Context, string, string) error {
	return s.fail()
}

func (s *disabledSender) SendAccountCreated(context.Context, string) error {
	return s.fail()
}

func (s *disabledSender) SendPasswordResetOTP(context.Context, string, string) error {
	return s.fail()
}

func (s *disabledSender) SendPasswordChanged(context.Context, string) error {
	return s.fail()
}
