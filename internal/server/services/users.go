package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/auth"
	"github.com/dmitrijs2005/healthvault/internal/server/config"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserService handles registration, login, token refresh and account
// deletion, and resolves emails for the sharing service.
type UserService struct {
	repomanager                  repomanager.RepositoryManager
	files                        filestore.Store
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewUserService(m repomanager.RepositoryManager, files filestore.Store, logger logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		repomanager:                  m,
		files:                        files,
		logger:                       logger,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates the user, attaches grants already addressed to the email,
// and signs the user in.
func (s *UserService) Register(ctx context.Context, email, password, fullName string) (*models.User, *TokenPair, error) {
	email = common.NormalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	switch {
	case email == "":
		return nil, nil, common.NewValidationError("email", "is required")
	case !validEmail(email):
		return nil, nil, common.NewValidationError("email", "is not a valid email address")
	case password == "":
		return nil, nil, common.NewValidationError("password", "is required")
	case fullName == "":
		return nil, nil, common.NewValidationError("fullName", "is required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	var user *models.User
	var pair *TokenPair
	err = s.repomanager.RunInTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(ctx, &models.User{Email: email, PasswordHash: hash, FullName: fullName})
		if err != nil {
			return err
		}
		n, err := s.repomanager.Shares(tx).ResolveRecipient(ctx, email, user.ID)
		if err != nil {
			return fmt.Errorf("resolve pending grants: %w", err)
		}
		if n > 0 {
			s.logger.Info(ctx, "pending grants resolved", "user_id", user.ID, "count", n)
		}
		pair, err = s.generateTokenPair(ctx, models.Identity{UserID: user.ID, Email: user.Email}, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// dummyHash keeps the cost of a login for an unknown email close to that of
// a wrong password.
var dummyHash, _ = auth.HashPassword("healthvault-dummy-password")

// Login verifies the password and returns a new TokenPair. Any mismatch is
// common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	user, err := s.repomanager.Users(s.repomanager.DB()).GetByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = auth.CheckPassword(dummyHash, password)
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, models.Identity{UserID: user.ID, Email: user.Email}, s.repomanager.DB())
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// RefreshToken rotates a refresh token inside a transaction. A token that
// was already used is common.ErrInvalidToken; an expired one is
// common.ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	err := s.repomanager.RunInTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		token, err := repo.Find(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("error searching refresh token: %w", err)
		}
		if token.Expires.Before(time.Now()) {
			return common.ErrRefreshTokenExpired
		}
		if err := repo.Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("load user: %w", err)
		}

		pair, err = s.generateTokenPair(ctx, models.Identity{UserID: user.ID, Email: user.Email}, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Authenticate verifies an access token and returns the identity it carries.
func (s *UserService) Authenticate(token string) (models.Identity, error) {
	return auth.ParseToken(token, s.jwtSecret)
}

// ResolveEmail implements IdentityResolver.
func (s *UserService) ResolveEmail(ctx context.Context, email string) (string, bool, error) {
	user, err := s.repomanager.Users(s.repomanager.DB()).GetByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return user.ID, true, nil
}

// DeleteAccount removes the files of every owned report and then the user.
// Owned reports, their vitals and grants, and grants the user sent go with
// the row; grants addressed to the user keep only the email.
func (s *UserService) DeleteAccount(ctx context.Context, id models.Identity) error {
	if _, err := s.repomanager.Users(s.repomanager.DB()).GetByID(ctx, id.UserID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFoundOrForbidden
		}
		return fmt.Errorf("load user: %w", err)
	}

	files, err := s.repomanager.Reports(s.repomanager.DB()).ListFiles(ctx, id.UserID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	removed := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := s.files.Remove(ctx, f.FilePath); err != nil {
			if len(removed) == 0 {
				return fmt.Errorf("remove file of report %s: %w", f.ReportID, err)
			}
			s.logger.Error(ctx, "report files removed but account delete stopped",
				"user_id", id.UserID, "report_id", f.ReportID, "removed_refs", removed, "error", err)
			return &common.FatalError{Op: "delete account", Ref: id.UserID, Err: err}
		}
		removed = append(removed, f.FilePath)
	}

	if err := s.repomanager.Users(s.repomanager.DB()).Delete(ctx, id.UserID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFoundOrForbidden
		}
		if len(files) == 0 {
			return fmt.Errorf("delete user: %w", err)
		}
		s.logger.Error(ctx, "report files removed but account delete failed",
			"user_id", id.UserID, "files", len(files), "error", err)
		return &common.FatalError{Op: "delete account", Ref: id.UserID, Err: err}
	}

	s.logger.Info(ctx, "account deleted", "user_id", id.UserID, "reports", len(files))
	return nil
}

// PurgeExpiredTokens drops refresh tokens that can no longer be used.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.repomanager.DB()).DeleteExpired(ctx, time.Now())
}

func (s *UserService) generateTokenPair(ctx context.Context, id models.Identity, db dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(id, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, id.UserID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
