package handlers

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPage_SessionAndDashboard(t *testing.T) {
	f := newSiteFixture(t)
	f.register(t, "vovo@example.com", types.RoleUser)
	b := f.browser()

	rec := b.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	b.login(t, "vovo@example.com")
	rec = b.get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "vovo@example.com")
	assert.Contains(t, body, "Login realizado com sucesso!")
	assert.NotContains(t, body, "Ir para o painel administrativo")

	// Signed-in visitors skip the form.
	rec = b.get("/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestLoginSubmit_WrongPassword(t *testing.T) {
	f := newSiteFixture(t)
	f.register(t, "vovo@example.com", types.RoleUser)
	b := f.browser()

	rec := b.post("/login", url.Values{"email": {"vovo@example.com"}, "password": {"errada"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), loginFailedMessage)
	assert.Contains(t, rec.Body.String(), `value="vovo@example.com"`)
	assert.Empty(t, b.token())
}

func TestRegisterSubmit(t *testing.T) {
	f := newSiteFixture(t)
	b := f.browser()

	rec := b.post("/register", url.Values{
		"email":            {"nova@example.com"},
		"full_name":        {"Maria"},
		"password":         {"segredo123"},
		"confirm_password": {"outra12345"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "As senhas não conferem.")

	rec = b.post("/register", url.Values{
		"email":            {"nova@example.com"},
		"full_name":        {"Maria"},
		"password":         {"segredo123"},
		"confirm_password": {"segredo123"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.NotEmpty(t, b.token())

	rec = b.get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Olá, Maria!")
}

func TestRegisterSubmit_Disabled(t *testing.T) {
	f := newSiteFixture(t)
	f.settings.settings.EnableUserRegistration = false
	b := f.browser()

	rec := b.post("/register", url.Values{
		"email":            {"nova@example.com"},
		"password":         {"segredo123"},
		"confirm_password": {"segredo123"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "O cadastro de novos usuários está desabilitado")
	_, err := f.repo.GetByEmail(context.Background(), "nova@example.com")
	assert.Error(t, err)
}

func TestRegisterSubmit_ConfirmationLink(t *testing.T) {
	f := newSiteFixture(t)
	f.settings.settings.RequireEmailVerification = true
	b := f.browser()

	rec := b.post("/register", url.Values{
		"email":            {"nova@example.com"},
		"password":         {"segredo123"},
		"confirm_password": {"segredo123"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Empty(t, b.token())

	// Unconfirmed accounts cannot sign in yet.
	rec = b.post("/login", url.Values{"email": {"nova@example.com"}, "password": {"segredo123"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	link, err := url.Parse(f.links.last(t).URL)
	require.NoError(t, err)
	rec = b.get("/auth/confirm?token=" + url.QueryEscape(link.Query().Get("token")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Seu email foi confirmado")
	assert.NotEmpty(t, b.token())
	assert.Equal(t, http.StatusOK, b.get("/dashboard").Code)

	// Links are single use.
	rec = f.browser().get("/auth/confirm?token=" + url.QueryEscape(link.Query().Get("token")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPagesLogout(t *testing.T) {
	f := newSiteFixture(t)
	f.register(t, "vovo@example.com", types.RoleUser)
	b := f.browser()
	b.login(t, "vovo@example.com")

	rec := b.post("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, b.token())

	rec = b.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestChangePasswordSubmit(t *testing.T) {
	f := newSiteFixture(t)
	f.register(t, "vovo@example.com", types.RoleUser)
	b := f.browser()
	b.login(t, "vovo@example.com")

	rec := b.post("/change-password", url.Values{
		"current_password": {"errada123"},
		"new_password":     {"novasenha1"},
		"confirm_password": {"novasenha1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Senha atual incorreta.")

	rec = b.post("/change-password", url.Values{
		"current_password": {testPassword},
		"new_password":     {"novasenha1"},
		"confirm_password": {"novasenha1"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	_, err := f.provider.SignIn(context.Background(), "vovo@example.com", "novasenha1")
	assert.NoError(t, err)
}

func TestChangePasswordPage_RequiresSession(t *testing.T) {
	f := newSiteFixture(t)
	rec := f.browser().get("/change-password")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newSiteFixture(t)
	f.register(t, "vovo@example.com", types.RoleUser)
	b := f.browser()

	rec := b.post("/forgot-password", url.Values{"email": {"vovo@example.com"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	link, err := url.Parse(f.links.last(t).URL)
	require.NoError(t, err)
	assert.Equal(t, "/reset-password", link.Path)

	rec = b.post("/reset-password", url.Values{
		"fragment":         {"#" + link.Fragment},
		"password":         {"novasenha1"},
		"confirm_password": {"diferente1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "As senhas não conferem.")

	rec = b.post("/reset-password", url.Values{
		"fragment":         {"#" + link.Fragment},
		"password":         {"novasenha1"},
		"confirm_password": {"novasenha1"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Empty(t, b.token())

	_, err = f.provider.SignIn(context.Background(), "vovo@example.com", "novasenha1")
	assert.NoError(t, err)
}
