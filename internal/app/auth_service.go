package app

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"missionchat/internal/model"
	"missionchat/internal/pkg/jwtutil"
	"missionchat/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// UserStore covers the account reads and writes the auth flow needs.
type UserStore interface {
	Create(user *model.User) error
	GetByUsernameOrEmail(identifier string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
	UpdateLastLogin(id uint, at time.Time) error
	Deactivate(id uint) error
}

type AuthService struct {
	userRepo      UserStore
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Identifier string
	Password   string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(userRepo UserStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// ValidatePassword returns every violated strength rule, empty when the
// password is acceptable.
func ValidatePassword(password string) []string {
	var violations []string
	if len(password) < 8 {
		violations = append(violations, "password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		violations = append(violations, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "password must contain at least one number")
	}
	return violations
}

func validateRegister(input RegisterInput) *ValidationError {
	var violations []string
	if len(input.Username) < 3 {
		violations = append(violations, "username must be at least 3 characters")
	}
	if !emailPattern.MatchString(input.Email) {
		violations = append(violations, "please enter a valid email address")
	}
	violations = append(violations, ValidatePassword(input.Password)...)
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// Register creates an account. Uniqueness is enforced by the store's
// unique indexes in a single insert, so a conflict cannot leave a partial
// write; which field collided is not disclosed.
func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	if err := validateRegister(input); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.userRepo.Create(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateAccount
		}
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Login authenticates by username or email. Unknown identifier, inactive
// account and wrong password all fail with the same error. A failed
// last-login update is logged and ignored so it never blocks a valid
// login.
func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := s.userRepo.GetByUsernameOrEmail(identifier)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(user.ID, now); err != nil {
		log.Printf("update last login for user %d failed: %v", user.ID, err)
	} else {
		user.LastLogin = &now
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}

// Deactivate disables an account without deleting it. Deactivated
// accounts can no longer log in.
func (s *AuthService) Deactivate(id uint) error {
	if id == 0 {
		return ErrInvalidInput
	}
	return s.userRepo.Deactivate(id)
}
