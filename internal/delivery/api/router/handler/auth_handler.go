// Package handler contains the HTTP handlers for the application.
package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"portal/internal/delivery/api/middleware"
	"portal/internal/delivery/api/response"
	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/errors"
	"portal/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// AuthHandlerParams holds dependencies for AuthHandler, injected by Fx.
type AuthHandlerParams struct {
	fx.In

	AuthUC usecase.AuthUsecase
	Logger *slog.Logger
}

// AuthHandler exposes the authentication flows.
type AuthHandler struct {
	authUC usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler.
func NewAuthHandler(params AuthHandlerParams) *AuthHandler {
	return &AuthHandler{
		authUC: params.AuthUC,
		logger: params.Logger,
	}
}

// RegisterRequest represents the request body for self-registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     string `json:"role" validate:"required,oneof=teacher student parent"`
}

// LoginRequest represents the request body for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// VerifyTwoFactorRequest completes a challenged login.
type VerifyTwoFactorRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,max=32"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// EnableTwoFactorRequest confirms enrollment with a code from the authenticator.
type EnableTwoFactorRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// DisableTwoFactorRequest confirms the password before turning 2FA off.
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// ChangePasswordRequest replaces a known password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// PasswordResetRequest starts the forgotten-password flow.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// ResetPasswordRequest redeems a reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

// AccountView is the public projection of an account.
type AccountView struct {
	ID               uuid.UUID   `json:"id"`
	Email            string      `json:"email"`
	Name             string      `json:"name"`
	Role             entity.Role `json:"role"`
	TwoFactorEnabled bool        `json:"two_factor_enabled"`
	CreatedAt        time.Time   `json:"created_at"`
}

// LoginView is returned by login and 2FA verification.
type LoginView struct {
	Status             usecase.LoginStatus `json:"status"`
	Account            *entity.Identity    `json:"account,omitempty"`
	Tokens             *entity.TokenPair   `json:"tokens,omitempty"`
	ChallengeToken     string              `json:"challenge_token,omitempty"`
	ChallengeExpiresAt *time.Time          `json:"challenge_expires_at,omitempty"`
}

// TwoFactorSetupView carries the enrollment material. The QR code is a base64 PNG.
type TwoFactorSetupView struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code_png_base64"`
}

// Register handles self-registration.
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	output, err := h.authUC.Register(c.Request().Context(), &usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     entity.Role(req.Role),
		ClientID: c.RealIP(),
	})
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusCreated, newAccountView(output.Account))
}

// Login handles password login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	output, err := h.authUC.Login(c.Request().Context(), &usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		ClientID: c.RealIP(),
	})
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusOK, newLoginView(output))
}

// VerifyTwoFactor handles the second step of a challenged login.
func (h *AuthHandler) VerifyTwoFactor(c echo.Context) error {
	var req VerifyTwoFactorRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	output, err := h.authUC.VerifyTwoFactor(c.Request().Context(), &usecase.VerifyTwoFactorInput{
		ChallengeToken: req.ChallengeToken,
		Code:           req.Code,
		ClientID:       c.RealIP(),
	})
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusOK, newLoginView(output))
}

// Refresh rotates the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	pair, err := h.authUC.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusOK, pair)
}

// Logout revokes the caller's refresh session.
func (h *AuthHandler) Logout(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}

	if err := h.authUC.Logout(c.Request().Context(), identity.AccountID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// RevokeSessions lets an administrator sign any account out.
func (h *AuthHandler) RevokeSessions(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return domainerrors.ErrValidationFailed.WithDetails("id must be a uuid")
	}

	if err := h.authUC.RevokeSessions(c.Request().Context(), identity, accountID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's account.
func (h *AuthHandler) Me(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}

	account, err := h.authUC.Me(c.Request().Context(), identity.AccountID)
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusOK, newAccountView(account))
}

// SetupTwoFactor starts TOTP enrollment.
func (h *AuthHandler) SetupTwoFactor(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}

	output, err := h.authUC.SetupTwoFactor(c.Request().Context(), identity.AccountID)
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusOK, TwoFactorSetupView{
		Secret:          output.Secret,
		ProvisioningURI: output.ProvisioningURI,
		QRCode:          base64.StdEncoding.EncodeToString(output.QRCodePNG),
	})
}

// EnableTwoFactor confirms enrollment and returns the recovery codes once.
func (h *AuthHandler) EnableTwoFactor(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}

	var req EnableTwoFactorRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	output, err := h.authUC.EnableTwoFactor(c.Request().Context(), identity.AccountID, req.Code)
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusOK, map[string]any{"recovery_codes": output.RecoveryCodes})
}

// DisableTwoFactor turns 2FA off after a password check.
func (h *AuthHandler) DisableTwoFactor(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}

	var req DisableTwoFactorRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	if err := h.authUC.DisableTwoFactor(c.Request().Context(), identity.AccountID, req.Password); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}

	var req ChangePasswordRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	if err := h.authUC.ChangePassword(c.Request().Context(), &usecase.ChangePasswordInput{
		AccountID:       identity.AccountID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// RequestPasswordReset answers 202 whether or not the email is registered.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	output, err := h.authUC.RequestPasswordReset(c.Request().Context(), &usecase.RequestPasswordResetInput{
		Email:    req.Email,
		ClientID: c.RealIP(),
	})
	if err != nil {
		return err
	}

	return response.Success(c, http.StatusAccepted, map[string]string{"message": output.Message})
}

// ResetPassword redeems a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	if err := h.authUC.ResetPassword(c.Request().Context(), &usecase.ResetPasswordInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	}); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domainerrors.ErrValidationFailed.WithDetails("malformed request body")
	}

	return errors.WithStack(c.Validate(req))
}

func identityOf(c echo.Context) (*entity.Identity, error) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return nil, errors.WithStack(domainerrors.ErrUnauthorized)
	}

	return identity, nil
}

func newAccountView(account *entity.Account) *AccountView {
	return &AccountView{
		ID:               account.ID,
		Email:            account.Email,
		Name:             account.Name,
		Role:             account.Role,
		TwoFactorEnabled: account.TwoFactorEnabled,
		CreatedAt:        account.CreatedAt,
	}
}

func newLoginView(output *usecase.LoginOutput) *LoginView {
	view := &LoginView{
		Status:         output.Status,
		Account:        output.Identity,
		Tokens:         output.Tokens,
		ChallengeToken: output.ChallengeToken,
	}
	if output.Status == usecase.LoginStatusTwoFactorRequired {
		expiresAt := output.ChallengeExpiresAt
		view.ChallengeExpiresAt = &expiresAt
	}

	return view
}
