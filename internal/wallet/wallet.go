// Package wallet keeps organizers' provider credentials usable: tokens close
// to expiry are renewed through the refresh grant before they are handed out.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/mercadopago"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/google/uuid"
)

// RefreshMargin is how close to expiry a token gets renewed.
const RefreshMargin = 5 * time.Minute

var ErrRefreshFailed = errors.New("seller token refresh failed")

// TokenRefresher renews an access token from a refresh token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*mercadopago.OAuthToken, error)
}

type Service struct {
	accounts  *repository.SellerAccountRepo
	refresher TokenRefresher
	now       func() time.Time
}

func NewService(accounts *repository.SellerAccountRepo, refresher TokenRefresher) *Service {
	return &Service{accounts: accounts, refresher: refresher, now: time.Now}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AccessToken returns a usable credential for the organizer, renewing it
// when it is about to expire. A token that is still valid is returned even
// if its renewal fails; an expired one yields repository.ErrSellerTokenExpired.
func (s *Service) AccessToken(ctx context.Context, sellerID uuid.UUID) (string, error) {
	account, err := s.accounts.Find(ctx, sellerID)
	if err != nil {
		return "", err
	}
	now := s.now()
	if !account.ExpiresWithin(now, RefreshMargin) {
		return account.AccessToken, nil
	}

	token, err := s.renew(ctx, sellerID, account.RefreshToken)
	if err == nil {
		return token.AccessToken, nil
	}
	if !account.ExpiresWithin(now, 0) {
		logger.Warnf("[WALLET_REFRESH_FAILED] seller=%s token still valid until %s: %v", sellerID, account.TokenExpiresAt.Format(time.RFC3339), err)
		return account.AccessToken, nil
	}
	logger.Warnf("[WALLET_EXPIRED] seller=%s refresh failed: %v", sellerID, err)
	return "", repository.ErrSellerTokenExpired
}

// Refreshed describes the credential after Refresh.
type Refreshed struct {
	Renewed   bool
	ExpiresAt *time.Time
	ExpiresIn time.Duration
}

// Refresh renews the organizer's token unless it stays valid beyond the
// refresh margin. A failed renewal unlinks the account so the organizer is
// asked to link it again.
func (s *Service) Refresh(ctx context.Context, sellerID uuid.UUID) (*Refreshed, error) {
	account, err := s.accounts.Find(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !account.ExpiresWithin(now, RefreshMargin) {
		res := &Refreshed{ExpiresAt: account.TokenExpiresAt}
		if account.TokenExpiresAt != nil {
			res.ExpiresIn = account.TokenExpiresAt.Sub(now)
		}
		return res, nil
	}

	token, err := s.renew(ctx, sellerID, account.RefreshToken)
	if err != nil {
		if unlinkErr := s.accounts.Unlink(ctx, sellerID); unlinkErr != nil {
			logger.Errorf("[WALLET_UNLINK_FAILED] seller=%s err=%v", sellerID, unlinkErr)
		}
		logger.Warnf("[WALLET_UNLINKED] seller=%s refresh failed: %v", sellerID, err)
		return nil, err
	}
	expiresAt := token.ExpiresAt(now).UTC()
	return &Refreshed{
		Renewed:   true,
		ExpiresAt: &expiresAt,
		ExpiresIn: time.Duration(token.ExpiresIn) * time.Second,
	}, nil
}

func (s *Service) renew(ctx context.Context, sellerID uuid.UUID, refreshToken string) (*mercadopago.OAuthToken, error) {
	if s.refresher == nil || refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token on file", ErrRefreshFailed)
	}
	token, err := s.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	expiresAt := token.ExpiresAt(s.now()).UTC()
	if err := s.accounts.SaveToken(ctx, sellerID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("save renewed token: %w", err)
	}
	logger.Infof("[WALLET_REFRESHED] seller=%s expires_at=%s", sellerID, expiresAt.Format(time.RFC3339))
	return token, nil
}
