package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
)

const (
	flashSuccess = "success"
	flashError   = "error"

	loginFailedMessage    = "Falha ao fazer login. Verifique suas credenciais."
	registerFailedMessage = "Falha ao criar conta. Verifique os dados informados."
	registeredMessage     = "Conta criada com sucesso! Verificação pode ser necessária."
	noSessionMessage      = "Você precisa estar logado para alterar a senha"
)

// LoginPage shows the sign-in form. Signed-in visitors go to their
// dashboard.
func (p *Pages) LoginPage(w http.ResponseWriter, r *http.Request) {
	if stateOf(r).User != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	p.render(w, r, http.StatusOK, "pages/login", p.data(r, "Entrar"))
}

func (p *Pages) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	session, err := clientOf(r).SignIn(r.Context(), email, password)
	if err != nil {
		status, message := errorStatus(err)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			message = loginFailedMessage
		}
		td := p.data(r, "Entrar")
		td.Error = message
		td.Form = map[string]string{"email": email}
		p.render(w, r, status, "pages/login", td)
		return
	}

	if err := p.auth.persist(r, session); err != nil {
		p.renderError(w, r, err)
		return
	}
	p.flash(r, "Login realizado com sucesso!", flashSuccess)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// RegisterPage shows the sign-up form, or a notice when registration is
// disabled.
func (p *Pages) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if stateOf(r).User != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	settings, err := p.settings.Get(r.Context())
	if err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Criar conta")
	td.Data = settings.EnableUserRegistration
	p.render(w, r, http.StatusOK, "pages/register", td)
}

func (p *Pages) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	settings, err := p.settings.Get(r.Context())
	if err != nil {
		p.renderError(w, r, err)
		return
	}

	form := map[string]string{
		"email":     strings.TrimSpace(r.PostForm.Get("email")),
		"full_name": strings.TrimSpace(r.PostForm.Get("full_name")),
	}
	fail := func(status int, message string) {
		td := p.data(r, "Criar conta")
		td.Data = settings.EnableUserRegistration
		td.Error = message
		td.Form = form
		p.render(w, r, status, "pages/register", td)
	}

	if !settings.EnableUserRegistration {
		fail(http.StatusForbidden, "O cadastro de novos usuários está desabilitado")
		return
	}
	password := r.PostForm.Get("password")
	if password != r.PostForm.Get("confirm_password") {
		fail(http.StatusBadRequest, "As senhas não conferem.")
		return
	}

	session, _, err := clientOf(r).SignUp(r.Context(), identity.SignUpParams{
		Email:               form["email"],
		Password:            password,
		FullName:            form["full_name"],
		RequireConfirmation: settings.RequireEmailVerification,
	})
	if err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			p.logger.ErrorContext(r.Context(), "register", slog.String("error", err.Error()))
			message = registerFailedMessage
		}
		fail(status, message)
		return
	}

	p.flash(r, registeredMessage, flashSuccess)
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := p.auth.persist(r, *session); err != nil {
		p.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout ends the session. The browser session is cleared even when the
// session store fails.
func (p *Pages) Logout(w http.ResponseWriter, r *http.Request) {
	if ra := authFrom(r); ra != nil {
		if err := ra.auth.SignOut(r.Context()); err != nil {
			p.logger.WarnContext(r.Context(), "sign out", slog.String("error", err.Error()))
		}
	}
	p.auth.forget(r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Pages) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/forgot_password", p.data(r, "Esqueci minha senha"))
}

// ForgotPasswordSubmit sends a recovery link pointing at the reset page.
// Known and unknown addresses get the same answer.
func (p *Pages) ForgotPasswordSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	err := clientOf(r).ResetPasswordForEmail(r.Context(), email, p.baseURL+"/reset-password")
	if err != nil {
		status, message := errorStatus(err)
		td := p.data(r, "Esqueci minha senha")
		td.Error = message
		td.Form = map[string]string{"email": email}
		p.render(w, r, status, "pages/forgot_password", td)
		return
	}
	p.flash(r, forgotPasswordMessage, flashSuccess)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (p *Pages) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/reset_password", p.data(r, "Redefinir senha"))
}

// ResetPasswordSubmit sets the new password from the recovery fragment the
// page copied out of the link. The recovery session is closed afterwards.
func (p *Pages) ResetPasswordSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	in := services.ResetPasswordInput{
		Fragment:        strings.TrimPrefix(r.PostForm.Get("fragment"), "#"),
		Password:        r.PostForm.Get("password"),
		ConfirmPassword: r.PostForm.Get("confirm_password"),
	}

	client := clientOf(r)
	if err := p.account.ResetPassword(r.Context(), client, in); err != nil {
		status, message := errorStatus(err)
		td := p.data(r, "Redefinir senha")
		td.Error = message
		td.Form = map[string]string{"fragment": in.Fragment}
		p.render(w, r, status, "pages/reset_password", td)
		return
	}
	if err := client.SignOut(r.Context()); err != nil {
		p.logger.WarnContext(r.Context(), "close recovery session", slog.String("error", err.Error()))
	}
	p.auth.forget(r)
	p.flash(r, "Senha redefinida com sucesso!", flashSuccess)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (p *Pages) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/change_password", p.data(r, "Alterar senha"))
}

func (p *Pages) ChangePasswordSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	in := services.ChangePasswordInput{
		CurrentPassword: r.PostForm.Get("current_password"),
		NewPassword:     r.PostForm.Get("new_password"),
		ConfirmPassword: r.PostForm.Get("confirm_password"),
	}

	err := p.account.ChangePassword(r.Context(), clientOf(r), in)
	switch {
	case err == nil:
		p.flash(r, "Senha alterada com sucesso!", flashSuccess)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	case errors.Is(err, identity.ErrNoSession):
		p.auth.forget(r)
		p.flash(r, noSessionMessage, flashError)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	default:
		status, message := errorStatus(err)
		td := p.data(r, "Alterar senha")
		td.Error = message
		p.render(w, r, status, "pages/change_password", td)
	}
}

// Confirm follows an email confirmation link and signs the visitor in.
func (p *Pages) Confirm(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	session, err := clientOf(r).ConfirmEmail(r.Context(), token)
	if err != nil {
		status, message := errorStatus(err)
		td := p.data(r, "Confirmação de email")
		td.Error = message
		p.render(w, r, status, "pages/confirm", td)
		return
	}
	if err := p.auth.persist(r, session); err != nil {
		p.renderError(w, r, err)
		return
	}
	td := p.data(r, "Confirmação de email")
	td.User = &session.User
	p.render(w, r, http.StatusOK, "pages/confirm", td)
}

