package services

import (
	"context"
	"errors"
	"testing"

	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/logger"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	session   *types.Session
	updates   []string
	exchanged []string
	exchange  error
}

func (c *fakeClient) GetSession(context.Context) (*types.Session, error) {
	return c.session, nil
}

func (c *fakeClient) UpdateUser(_ context.Context, password string) (types.User, error) {
	c.updates = append(c.updates, password)
	return types.User{}, nil
}

func (c *fakeClient) ExchangeRecovery(_ context.Context, token string) (types.Session, error) {
	c.exchanged = append(c.exchanged, token)
	return types.Session{}, c.exchange
}

type fakeVerifier struct {
	password string
	signIns  int
	signOuts []string
}

func (v *fakeVerifier) SignIn(_ context.Context, _ string, password string) (types.Session, error) {
	v.signIns++
	if password != v.password {
		return types.Session{}, identity.ErrInvalidCredentials
	}
	return types.Session{AccessToken: "verify-token"}, nil
}

func (v *fakeVerifier) SignOut(_ context.Context, token string) error {
	v.signOuts = append(v.signOuts, token)
	return nil
}

func signedIn() *fakeClient {
	return &fakeClient{session: &types.Session{ID: "s1", User: types.User{ID: "u1", Email: "vovo@example.com"}}}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	client := signedIn()
	verifier := &fakeVerifier{password: "antiga1"}
	svc := NewAccountService(verifier, logger.Discard())

	err := svc.ChangePassword(context.Background(), client, ChangePasswordInput{
		CurrentPassword: "errada",
		NewPassword:     "novasenha",
		ConfirmPassword: "novasenha",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Senha atual incorreta")
	assert.Empty(t, client.updates)
}

func TestChangePassword_Success(t *testing.T) {
	client := signedIn()
	verifier := &fakeVerifier{password: "antiga1"}
	svc := NewAccountService(verifier, logger.Discard())

	err := svc.ChangePassword(context.Background(), client, ChangePasswordInput{
		CurrentPassword: "antiga1",
		NewPassword:     "novasenha",
		ConfirmPassword: "novasenha",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"novasenha"}, client.updates)
	assert.Equal(t, []string{"verify-token"}, verifier.signOuts)
}

func TestChangePassword_LocalValidation(t *testing.T) {
	tests := []struct {
		name string
		in   ChangePasswordInput
		want string
	}{
		{"mismatch", ChangePasswordInput{CurrentPassword: "antiga1", NewPassword: "novasenha", ConfirmPassword: "novasenhA"}, "As novas senhas não conferem."},
		{"short", ChangePasswordInput{CurrentPassword: "antiga1", NewPassword: "12345", ConfirmPassword: "12345"}, "A senha deve ter pelo menos 6 caracteres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := signedIn()
			verifier := &fakeVerifier{password: "antiga1"}
			svc := NewAccountService(verifier, logger.Discard())

			err := svc.ChangePassword(context.Background(), client, tt.in)
			assert.EqualError(t, err, tt.want)
			assert.Zero(t, verifier.signIns)
			assert.Empty(t, client.updates)
		})
	}
}

func TestChangePassword_RequiresSession(t *testing.T) {
	svc := NewAccountService(&fakeVerifier{}, logger.Discard())
	err := svc.ChangePassword(context.Background(), &fakeClient{}, ChangePasswordInput{
		CurrentPassword: "antiga1", NewPassword: "novasenha", ConfirmPassword: "novasenha",
	})
	assert.ErrorIs(t, err, identity.ErrNoSession)
}

func TestResetPassword(t *testing.T) {
	svc := NewAccountService(&fakeVerifier{}, logger.Discard())
	ctx := context.Background()

	client := &fakeClient{}
	err := svc.ResetPassword(ctx, client, ResetPasswordInput{Password: "novasenha", ConfirmPassword: "novasenha"})
	assert.EqualError(t, err, "Link de redefinição de senha inválido.")

	err = svc.ResetPassword(ctx, client, ResetPasswordInput{
		Fragment: "access_token=abc&type=recovery", Password: "novasenha", ConfirmPassword: "outra123",
	})
	assert.EqualError(t, err, "As senhas não conferem.")
	assert.Empty(t, client.exchanged)

	err = svc.ResetPassword(ctx, client, ResetPasswordInput{
		Fragment: "#access_token=abc&type=recovery", Password: "novasenha", ConfirmPassword: "novasenha",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, client.exchanged)
	assert.Equal(t, []string{"novasenha"}, client.updates)
}

func TestResetPassword_ExpiredLink(t *testing.T) {
	svc := NewAccountService(&fakeVerifier{}, logger.Discard())
	client := &fakeClient{exchange: identity.ErrInvalidLink}

	err := svc.ResetPassword(context.Background(), client, ResetPasswordInput{
		Fragment: "access_token=abc&type=recovery", Password: "novasenha", ConfirmPassword: "novasenha",
	})
	assert.EqualError(t, err, "Link de redefinição de senha inválido.")
	assert.Empty(t, client.updates)

	client.exchange = errors.New("db down")
	err = svc.ResetPassword(context.Background(), client, ResetPasswordInput{
		Fragment: "access_token=abc", Password: "novasenha", ConfirmPassword: "novasenha",
	})
	assert.EqualError(t, err, "db down")
}

func TestRecoveryToken(t *testing.T) {
	token, ok := RecoveryToken("access_token=abc&type=recovery")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = RecoveryToken("access_token=abc&type=signup")
	assert.False(t, ok)
	_, ok = RecoveryToken("type=recovery")
	assert.False(t, ok)
	_, ok = RecoveryToken("")
	assert.False(t, ok)
}
