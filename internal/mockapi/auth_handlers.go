package mockapi

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

// Register handles POST /api/auth/register/.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[registerRequest](w, r)
	if !ok {
		return
	}

	fields := map[string][]string{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = append(fields["username"], "This field is required.")
	}
	if len(req.Password) < minPasswordLen {
		fields["password"] = append(fields["password"], fmt.Sprintf("Ensure this field has at least %d characters.", minPasswordLen))
	}
	if req.Password2 != "" && req.Password2 != req.Password {
		fields["password"] = append(fields["password"], "Password fields didn't match.")
	}
	if req.Role != "" && req.Role != "user" && req.Role != "admin" {
		fields["role"] = append(fields["role"], fmt.Sprintf("%q is not a valid choice.", req.Role))
	}

	s.mu.Lock()
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.Username, req.Username) {
			fields["username"] = append(fields["username"], "A user with that username already exists.")
		}
		if req.Email != "" && strings.EqualFold(acct.Email, req.Email) {
			fields["email"] = append(fields["email"], "user with this email already exists.")
		}
	}
	s.mu.Unlock()

	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	user, err := s.AddUser(req.Username, req.Email, req.Phone, req.Password, req.Role)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not create user")
		return
	}
	pair, err := s.IssueTokens(user.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	s.logger.Info("user registered", slog.Int("user_id", user.ID), slog.String("username", user.Username))
	writeJSON(w, http.StatusCreated, pair)
}

// Login handles POST /api/auth/login/. The username field also accepts an
// email address.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[loginRequest](w, r)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		fields := map[string][]string{}
		if req.Username == "" {
			fields["username"] = []string{"This field is required."}
		}
		if req.Password == "" {
			fields["password"] = []string{"This field is required."}
		}
		writeFieldErrors(w, fields)
		return
	}

	acct := s.authenticate(req.Username, req.Password)
	if acct == nil {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	pair, err := s.IssueTokens(acct.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// RefreshToken handles POST /api/auth/token/refresh/. Refresh tokens are not
// rotated, so only a new access token is returned.
func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	failStatus := s.refreshFailStatus
	s.mu.Unlock()
	if failStatus != 0 {
		writeDetail(w, failStatus, "Token is invalid or expired")
		return
	}

	req, ok := decodeJSON[refreshRequest](w, r)
	if !ok {
		return
	}
	if req.Refresh == "" {
		writeFieldErrors(w, map[string][]string{"refresh": {"This field is required."}})
		return
	}
	claims, err := s.validate(req.Refresh, tokenTypeRefresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	access, _, err := s.issue(claims.UserID, tokenTypeAccess, s.accessTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// Logout handles POST /api/auth/logout/ by blacklisting the supplied refresh
// token.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	s.mu.Lock()
	failStatus := s.logoutFailStatus
	s.mu.Unlock()
	if failStatus != 0 {
		writeJSON(w, failStatus, map[string]string{"error": "logout unavailable"})
		return
	}

	req, ok := decodeJSON[refreshRequest](w, r)
	if !ok {
		return
	}
	claims, err := s.validate(req.Refresh, tokenTypeRefresh)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid token or already blacklisted"})
		return
	}
	s.mu.Lock()
	s.blacklist[claims.ID] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusResetContent, map[string]string{"message": "Logged out successfully"})
}

// RequestOTP handles POST /api/auth/otp/request/.
func (s *Server) RequestOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[otpRequest](w, r)
	if !ok {
		return
	}
	identifier := otpIdentifier(req.Identifier, req.Phone, req.Email)
	if identifier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"identifier": "Phone or email is required."})
		return
	}

	var acct *account
	if req.Password != "" {
		acct = s.authenticate(identifier, req.Password)
		if acct == nil {
			writeDetail(w, http.StatusBadRequest, "Invalid credentials.")
			return
		}
	} else {
		acct = s.findByIdentifier(identifier)
		if acct == nil {
			writeDetail(w, http.StatusBadRequest, "No account associated with this identifier.")
			return
		}
	}

	code, err := newOTP()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not generate OTP")
		return
	}
	s.mu.Lock()
	s.otps[otpKey(identifier)] = otpEntry{
		code:      code,
		userID:    acct.ID,
		expiresAt: s.now().Add(otpTTL),
	}
	s.mu.Unlock()

	channel := "phone"
	if strings.Contains(identifier, "@") {
		channel = "email"
	}
	s.logger.Info("otp issued", slog.String("channel", channel), slog.Int("user_id", acct.ID))

	resp := map[string]string{"detail": "OTP sent to " + channel}
	if s.echoOTP {
		resp["otp"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// VerifyOTP handles POST /api/auth/otp/verify/.
func (s *Server) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[otpVerifyRequest](w, r)
	if !ok {
		return
	}
	identifier := otpIdentifier(req.Identifier, req.Phone, req.Email)
	if req.Code == "" || identifier == "" {
		writeDetail(w, http.StatusBadRequest, "Identifier and code are required.")
		return
	}

	key := otpKey(identifier)
	s.mu.Lock()
	entry, found := s.otps[key]
	valid := found && entry.code == req.Code && s.now().Before(entry.expiresAt)
	if valid {
		delete(s.otps, key)
	}
	s.mu.Unlock()
	if !valid {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired OTP.")
		return
	}

	pair, err := s.IssueTokens(entry.userID)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "User not found.")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// authenticate resolves identifier as a username, email or phone and checks
// password against the stored bcrypt hash.
func (s *Server) authenticate(identifier, password string) *account {
	acct := s.findByIdentifier(identifier)
	if acct == nil {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil
	}
	return acct
}

func (s *Server) findByIdentifier(identifier string) *account {
	identifier = strings.TrimSpace(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		switch {
		case strings.Contains(identifier, "@"):
			if strings.EqualFold(acct.Email, identifier) {
				return acct
			}
		case acct.Username == identifier:
			return acct
		case acct.Phone != "" && acct.Phone == identifier:
			return acct
		}
	}
	return nil
}

func otpIdentifier(identifier, phone, email string) string {
	switch {
	case phone != "":
		return phone
	case email != "":
		return email
	default:
		return identifier
	}
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
