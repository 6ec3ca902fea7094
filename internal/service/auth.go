package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iamdevroyal/blocpoint-client/internal/apiclient"
	domainauth "github.com/iamdevroyal/blocpoint-client/internal/domain/auth"
	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/observability/metrics"
	"github.com/iamdevroyal/blocpoint-client/internal/observability/statsd"
	"github.com/iamdevroyal/blocpoint-client/internal/session"
)

// Backend auth endpoints.
const (
	pathRequestOTP = "/auth/request-otp"
	pathVerifyOTP  = "/auth/verify-otp"
	pathRegister   = "/auth/register"
	pathLogin      = "/auth/login"
	pathQuickLogin = "/auth/quick-login"
	pathForgotPIN  = "/auth/forgot-pin"
	pathResetPIN   = "/auth/reset-pin"
	pathLogout     = "/auth/logout"
	pathMe         = "/auth/me"
)

// identityExpr locates the identity record in an auth or /auth/me response.
const identityExpr = "data.agent || data.identity || data"

// APIClient is the subset of the session client the auth service needs.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
}

// DeviceDescriber produces fresh device metadata for device-bound requests.
type DeviceDescriber interface {
	Describe() domainauth.DeviceInfo
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Client  APIClient       // Required
	State   *session.State  // Required
	Device  DeviceDescriber // Required
	Logger  *slog.Logger    // Optional
	Metrics statsd.Sink     // Optional
}

// AuthService drives the authentication lifecycle: OTP, registration, login, PIN reset,
// logout and boot-time restore. It is the only writer of the session besides the HTTP
// client's token refresh.
type AuthService struct {
	client  APIClient
	state   *session.State
	device  DeviceDescriber
	logger  *slog.Logger
	metrics statsd.Sink

	// proof is the transient OTP proof; never persisted.
	mu    sync.Mutex
	proof otpProof
}

type otpProof struct {
	token   string
	purpose domainauth.OTPPurpose
}

// RegisterInput groups the registration form fields.
type RegisterInput struct {
	Phone           string
	// OTPCode is the raw one-time code, used only when no verified register proof is held.
	OTPCode         string
	FirstName       string
	LastName        string
	PIN             string
	PINConfirmation string
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Client == nil {
		return nil, errors.New("api client is required")
	}
	if opts.State == nil {
		return nil, errors.New("session state is required")
	}
	if opts.Device == nil {
		return nil, errors.New("device describer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		client:  opts.Client,
		state:   opts.State,
		device:  opts.Device,
		logger:  logger.With("component", "auth_service"),
		metrics: opts.Metrics,
	}, nil
}

// RequestOTP asks the backend to send a registration code to phone.
func (s *AuthService) RequestOTP(ctx context.Context, phone string) (data map[string]any, err error) {
	defer s.observe(ctx, "request_otp", time.Now(), &err)

	normalized := domainauth.NormalizePhone(strings.TrimSpace(phone))
	if !domainauth.ValidPhone(normalized) {
		return nil, apperrors.ValidationField("phone", "phone number is not a valid Nigerian mobile number")
	}

	resp, err := s.client.Post(ctx, pathRequestOTP, map[string]any{
		"phone":   normalized,
		"purpose": domainauth.OTPPurposeRegister,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data()
}

// VerifyOTP verifies code for purpose and holds the returned proof in memory. A failed
// verification leaves any previously held proof untouched.
func (s *AuthService) VerifyOTP(
	ctx context.Context,
	phone, code string,
	purpose domainauth.OTPPurpose,
) (data map[string]any, err error) {
	defer s.observe(ctx, "verify_otp", time.Now(), &err)

	if !purpose.Valid() {
		return nil, apperrors.ValidationField("purpose", fmt.Sprintf("unknown otp purpose %q", purpose))
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.ValidationField("code", "otp code is required")
	}

	resp, err := s.client.Post(ctx, pathVerifyOTP, map[string]any{
		"phone":   domainauth.NormalizePhone(strings.TrimSpace(phone)),
		"code":    strings.TrimSpace(code),
		"purpose": purpose,
	})
	if err != nil {
		return nil, err
	}

	var token string
	if _, err := resp.Extract("data.otp_token", &token); err != nil {
		return nil, err
	}
	s.setProof(otpProof{token: token, purpose: purpose})
	return resp.Data()
}

// Register completes registration. It uses a held register proof when present, otherwise
// the inline OTPCode. On failure neither the session nor the proof is touched.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (sess domainauth.Session, err error) {
	defer s.observe(ctx, "register", time.Now(), &err)

	proof := s.proofFor(domainauth.OTPPurposeRegister)
	code := strings.TrimSpace(in.OTPCode)
	if proof == "" && code == "" {
		return domainauth.Session{}, apperrors.OTPRequired("verify the phone number or supply the otp code")
	}

	deviceID, err := s.state.DeviceID(ctx)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("resolve device id: %w", err)
	}

	payload := map[string]any{
		"phone":            domainauth.NormalizePhone(strings.TrimSpace(in.Phone)),
		"pin":              in.PIN,
		"pin_confirmation": in.PINConfirmation,
		"first_name":       strings.TrimSpace(in.FirstName),
		"last_name":        strings.TrimSpace(in.LastName),
		"device_id":        deviceID,
		"device_info":      s.device.Describe(),
	}
	if proof != "" {
		payload["otp_token"] = proof
	} else {
		payload["otp_code"] = code
	}

	resp, err := s.client.Post(ctx, pathRegister, payload)
	if err != nil {
		return domainauth.Session{}, err
	}
	sess, err = s.establish(ctx, resp)
	if err != nil {
		return domainauth.Session{}, err
	}
	s.consumeProof(proof)
	return sess, nil
}

// Login performs a full phone + PIN login and binds this device.
func (s *AuthService) Login(ctx context.Context, phone, pin string) (sess domainauth.Session, err error) {
	defer s.observe(ctx, "login", time.Now(), &err)

	deviceID, err := s.state.DeviceID(ctx)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("resolve device id: %w", err)
	}

	resp, err := s.client.Post(ctx, pathLogin, map[string]any{
		"phone":       domainauth.NormalizePhone(strings.TrimSpace(phone)),
		"pin":         pin,
		"device_id":   deviceID,
		"device_info": s.device.Describe(),
	})
	if err != nil {
		return domainauth.Session{}, err
	}
	return s.establish(ctx, resp)
}

// QuickLogin performs a PIN-only login on a previously bound device. When the backend no
// longer recognises the device, IsDeviceNotRecognized reports true for the returned error
// and the caller should fall back to Login.
func (s *AuthService) QuickLogin(ctx context.Context, pin string) (sess domainauth.Session, err error) {
	defer s.observe(ctx, "quick_login", time.Now(), &err)

	bound, err := s.state.HasDeviceID(ctx)
	if err != nil {
		return domainauth.Session{}, err
	}
	if !bound {
		return domainauth.Session{}, apperrors.DeviceUnbound("no device is bound; use full login")
	}
	deviceID, err := s.state.DeviceID(ctx)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("resolve device id: %w", err)
	}

	resp, err := s.client.Post(ctx, pathQuickLogin, map[string]any{
		"device_id": deviceID,
		"pin":       pin,
	})
	if err != nil {
		return domainauth.Session{}, err
	}
	return s.establish(ctx, resp)
}

// RequestForgotPinOTP asks the backend to send a PIN reset code.
func (s *AuthService) RequestForgotPinOTP(ctx context.Context, phone string) (data map[string]any, err error) {
	defer s.observe(ctx, "forgot_pin", time.Now(), &err)

	resp, err := s.client.Post(ctx, pathForgotPIN, map[string]any{
		"phone": domainauth.NormalizePhone(strings.TrimSpace(phone)),
	})
	if err != nil {
		return nil, err
	}
	return resp.Data()
}

// VerifyForgotPinOTP verifies a PIN reset code and holds the reset proof.
func (s *AuthService) VerifyForgotPinOTP(ctx context.Context, phone, code string) (map[string]any, error) {
	return s.VerifyOTP(ctx, phone, code, domainauth.OTPPurposeResetPIN)
}

// ResetPin sets a new PIN using the held reset proof. The proof is cleared on success and
// kept on failure.
func (s *AuthService) ResetPin(ctx context.Context, phone, newPin string) (data map[string]any, err error) {
	defer s.observe(ctx, "reset_pin", time.Now(), &err)

	proof := s.proofFor(domainauth.OTPPurposeResetPIN)
	if proof == "" {
		return nil, apperrors.OTPRequired("verify the reset code before choosing a new pin")
	}

	resp, err := s.client.Post(ctx, pathResetPIN, map[string]any{
		"phone":                domainauth.NormalizePhone(strings.TrimSpace(phone)),
		"otp_token":            proof,
		"new_pin":              newPin,
		"new_pin_confirmation": newPin,
	})
	if err != nil {
		return nil, err
	}
	s.consumeProof(proof)
	return resp.Data()
}

// Logout revokes the token on the backend when one is held, then clears the token, expiry,
// identity and OTP proof regardless of the backend outcome. The device id is kept.
// Only a local store failure is returned.
func (s *AuthService) Logout(ctx context.Context) (err error) {
	defer s.observe(ctx, "logout", time.Now(), &err)

	token, tokErr := s.state.Token(ctx)
	if tokErr != nil {
		s.logger.WarnContext(ctx, "read token before logout", "error", tokErr)
	}
	if token != "" {
		if _, revokeErr := s.client.Post(ctx, pathLogout, nil); revokeErr != nil {
			s.logger.WarnContext(ctx, "backend logout failed; clearing local session anyway", "error", revokeErr)
		}
	}

	s.AbandonOTP()
	if err := s.state.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// RestoreSession refreshes the cached identity from the backend at boot. Any failure keeps
// the cached identity and is only logged. The resulting session is returned.
func (s *AuthService) RestoreSession(ctx context.Context) domainauth.Session {
	start := time.Now()
	err := s.restoreIdentity(ctx)
	metrics.EmitAuthOperation(s.metrics, "restore", time.Since(start), err)
	if err != nil {
		s.logger.WarnContext(ctx, "identity refresh failed; using cached identity", "error", err)
	}

	sess, err := s.state.Session(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "load session", "error", err)
		return domainauth.Session{}
	}
	return sess
}

func (s *AuthService) restoreIdentity(ctx context.Context) error {
	token, err := s.state.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	resp, err := s.client.Get(ctx, pathMe, nil)
	if err != nil {
		return err
	}
	var identity domainauth.Identity
	found, err := resp.Extract(identityExpr, &identity)
	if err != nil {
		return err
	}
	if !found || len(identity) == 0 {
		return nil
	}
	return s.state.SetIdentity(ctx, identity)
}

// Session returns the current durable session.
func (s *AuthService) Session(ctx context.Context) (domainauth.Session, error) {
	return s.state.Session(ctx)
}

// IsAuthenticated reports whether a token is held. Expiry is not checked.
func (s *AuthService) IsAuthenticated(ctx context.Context) bool {
	token, err := s.state.Token(ctx)
	return err == nil && token != ""
}

// ForgetDevice unbinds this installation so the next login registers a new device id.
func (s *AuthService) ForgetDevice(ctx context.Context) error {
	return s.state.ForgetDevice(ctx)
}

// AbandonOTP drops any held OTP proof.
func (s *AuthService) AbandonOTP() {
	s.setProof(otpProof{})
}

// HasOTPProof reports whether a proof for purpose is held.
func (s *AuthService) HasOTPProof(purpose domainauth.OTPPurpose) bool {
	return s.proofFor(purpose) != ""
}

// IsDeviceNotRecognized reports whether err is the backend's rejection of an unknown device.
func IsDeviceNotRecognized(err error) bool {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	if strings.Contains(strings.ToLower(apiErr.Message), "device not recognized") {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.FieldError("device_id")), "not recognized")
}

// establish persists the session carried by a login-style response. Nothing is written
// unless the response carries a token.
func (s *AuthService) establish(ctx context.Context, resp *apiclient.Response) (domainauth.Session, error) {
	var payload struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if _, err := resp.Extract("data", &payload); err != nil {
		return domainauth.Session{}, err
	}
	if payload.Token == "" {
		return domainauth.Session{}, errors.New("auth response carried no token")
	}

	var identity domainauth.Identity
	if _, err := resp.Extract("data.agent || data.identity", &identity); err != nil {
		return domainauth.Session{}, err
	}

	if err := s.state.Establish(ctx, payload.Token, payload.ExpiresAt, identity); err != nil {
		return domainauth.Session{}, fmt.Errorf("persist session: %w", err)
	}
	return s.state.Session(ctx)
}

func (s *AuthService) setProof(p otpProof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proof = p
}

func (s *AuthService) proofFor(purpose domainauth.OTPPurpose) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proof.purpose != purpose {
		return ""
	}
	return s.proof.token
}

// consumeProof clears the proof unless a newer one replaced it meanwhile.
func (s *AuthService) consumeProof(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proof.token == token {
		s.proof = otpProof{}
	}
}

func (s *AuthService) observe(ctx context.Context, op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	metrics.EmitAuthOperation(s.metrics, op, time.Since(start), err)
	if err != nil {
		s.logger.DebugContext(ctx, "auth operation failed", "operation", op, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "auth operation completed", "operation", op)
}
