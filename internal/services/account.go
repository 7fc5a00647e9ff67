package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

// SessionClient is the visitor's session store client.
type SessionClient interface {
	GetSession(ctx context.Context) (*types.Session, error)
	UpdateUser(ctx context.Context, password string) (types.User, error)
	ExchangeRecovery(ctx context.Context, token string) (types.Session, error)
}

// CredentialVerifier checks a password by opening a throwaway session.
type CredentialVerifier interface {
	SignIn(ctx context.Context, email, password string) (types.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ResetPasswordInput struct {
	// Fragment is the URL fragment of the recovery link, without '#'.
	Fragment        string `json:"fragment"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type AccountService struct {
	verifier CredentialVerifier
	logger   *slog.Logger
}

func NewAccountService(verifier CredentialVerifier, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{verifier: verifier, logger: logger}
}

// ChangePassword re-verifies the current password before updating it. A
// wrong current password never reaches the update call.
func (s *AccountService) ChangePassword(ctx context.Context, client SessionClient, in ChangePasswordInput) error {
	if in.NewPassword != in.ConfirmPassword {
		return invalid("As novas senhas não conferem.")
	}
	if err := checkPasswordLength(in.NewPassword); err != nil {
		return err
	}
	if in.CurrentPassword == "" {
		return invalid("Senha atual é obrigatória")
	}

	session, err := client.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return identity.ErrNoSession
	}

	check, err := s.verifier.SignIn(ctx, session.User.Email, in.CurrentPassword)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return invalid("Senha atual incorreta.")
		}
		return err
	}
	if err := s.verifier.SignOut(ctx, check.AccessToken); err != nil {
		s.logger.Warn("close verification session", slog.String("user_id", session.User.ID), slog.String("error", err.Error()))
	}

	if _, err := client.UpdateUser(ctx, in.NewPassword); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.String("user_id", session.User.ID))
	return nil
}

// ResetPassword sets a new password for a visitor who arrived through a
// recovery link. The current password is not asked for.
func (s *AccountService) ResetPassword(ctx context.Context, client SessionClient, in ResetPasswordInput) error {
	token, ok := RecoveryToken(in.Fragment)
	if !ok {
		return invalid("Link de redefinição de senha inválido.")
	}
	if in.Password != in.ConfirmPassword {
		return invalid("As senhas não conferem.")
	}
	if err := checkPasswordLength(in.Password); err != nil {
		return err
	}

	if _, err := client.ExchangeRecovery(ctx, token); err != nil {
		if errors.Is(err, identity.ErrInvalidLink) {
			return invalid("Link de redefinição de senha inválido.")
		}
		return err
	}
	if _, err := client.UpdateUser(ctx, in.Password); err != nil {
		return err
	}
	return nil
}

// RecoveryToken extracts the access token of a recovery link fragment.
func RecoveryToken(fragment string) (string, bool) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return "", false
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", false
	}
	token := values.Get("access_token")
	if token == "" {
		return "", false
	}
	if kind := values.Get("type"); kind != "" && kind != string(types.TokenRecovery) {
		return "", false
	}
	return token, true
}

func checkPasswordLength(password string) error {
	if len(password) < identity.MinPasswordLength {
		return invalid("A senha deve ter pelo menos 6 caracteres")
	}
	return nil
}
