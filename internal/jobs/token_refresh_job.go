package job

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/repository"
	"github.com/anterny/tokrelay/internal/service"
)

// refreshHorizon is how far ahead of expiry a token is refreshed proactively.
const refreshHorizon = 30 * time.Minute

type TokenRefreshJob struct {
	accounts   repository.AccountRepository
	accountSvc service.AccountService
}

func NewTokenRefreshJob(accounts repository.AccountRepository, accountSvc service.AccountService) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts:   accounts,
		accountSvc: accountSvc,
	}
}

// RefreshTokens refreshes every usable account whose token expires within the
// horizon. Accounts are refreshed concurrently with a bounded fan-out.
func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	accounts, err := j.accounts.ListExpiring(ctx, time.Now().Add(refreshHorizon))
	if err != nil {
		log.Error().Err(err).Msg("failed to list expiring accounts")
		return
	}
	if len(accounts) == 0 {
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.TikTokAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.accountSvc.RefreshAccount(ctx, acc); err != nil {
				log.Warn().Str("account", acc.AccountLabel).Err(err).Msg("token refresh failed")
			}
		}(acc)
	}

	wg.Wait()
}
