package users

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tinyclassified/apperror"
	"tinyclassified/auth"
	"tinyclassified/database"
	"tinyclassified/email"
	"tinyclassified/models"
)

const passwordChangedSubject = "Your TinyClassified password"

type Service struct {
	store     database.UserStore
	passwords *auth.PasswordService
	mailer    email.Sender
	baseURL   string
}

func NewService(store database.UserStore, passwords *auth.PasswordService, mailer email.Sender, baseURL string) *Service {
	return &Service{
		store:     store,
		passwords: passwords,
		mailer:    mailer,
		baseURL:   baseURL,
	}
}

// NormalizeEmail is the form every email is stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Create(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	existing, err := s.store.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.DuplicateEmail(user.Email)
	}
	return s.store.UpsertUser(ctx, user)
}

// Read returns the user with the given email, or nil.
func (s *Service) Read(ctx context.Context, email string) (*models.User, error) {
	return s.store.GetUserByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// Update saves user over the record currently stored under originalEmail,
// which allows the email itself to change.
func (s *Service) Update(ctx context.Context, originalEmail string, user *models.User) error {
	originalEmail = NormalizeEmail(originalEmail)
	user.Email = NormalizeEmail(user.Email)
	existing, err := s.store.GetUserByEmail(ctx, originalEmail)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperror.NotFound("user", originalEmail)
	}

	user.ID = existing.ID
	return s.store.UpsertUser(ctx, user)
}

func (s *Service) Delete(ctx context.Context, email string) error {
	return s.store.DeleteUser(ctx, NormalizeEmail(email))
}

// Authenticate returns the user when password matches, nil otherwise.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil || user == nil {
		return nil, err
	}
	if !s.passwords.Check(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

func (s *Service) GeneratePassword() (string, error) {
	return auth.GeneratePassword()
}

// SetPassword hashes password onto user without saving it.
func (s *Service) SetPassword(user *models.User, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = hash
	return nil
}

// UpdatePasswordAndNotify stores a new password for user and, when asked,
// tells them by email. The password itself is only mailed when
// includePassword is set.
func (s *Service) UpdatePasswordAndNotify(ctx context.Context, user *models.User, password string, sendEmail, includePassword bool) error {
	if err := s.SetPassword(user, password); err != nil {
		return err
	}
	if err := s.Update(ctx, user.Email, user); err != nil {
		return err
	}
	if !sendEmail {
		return nil
	}

	body := fmt.Sprintf("The password for your account %s was changed.\n\nLog in at %s/login\n", user.Email, s.baseURL)
	if includePassword {
		body = fmt.Sprintf("Your new password is `%s`\n\nLog in at %s/login with %s and change it from the account page.\n",
			password, s.baseURL, user.Email)
	}
	if err := s.mailer.Send(ctx, []string{user.Email}, passwordChangedSubject, body); err != nil {
		log.Printf("Error sending password email to %s: %v", user.Email, err)
		return err
	}
	return nil
}

// EnsureAdmin makes sure an admin account exists for adminEmail, creating
// one with a generated password that is mailed to it.
func (s *Service) EnsureAdmin(ctx context.Context, adminEmail string) error {
	adminEmail = NormalizeEmail(adminEmail)
	if adminEmail == "" {
		return nil
	}
	existing, err := s.store.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.IsAdmin {
			return nil
		}
		existing.IsAdmin = true
		return s.store.UpsertUser(ctx, existing)
	}

	password, err := s.GeneratePassword()
	if err != nil {
		return err
	}
	user := &models.User{Email: adminEmail, IsAdmin: true}
	if err := s.SetPassword(user, password); err != nil {
		return err
	}
	if err := s.Create(ctx, user); err != nil {
		return err
	}
	log.Printf("Created admin account %s", adminEmail)

	body := fmt.Sprintf("An administrator account was created for you.\n\nYour password is `%s`\n\nLog in at %s/login\n", password, s.baseURL)
	return s.mailer.Send(ctx, []string{adminEmail}, passwordChangedSubject, body)
}
