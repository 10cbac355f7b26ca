package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrAlreadyClaimed     = errors.New("stake already claimed")
	ErrMarketOpen         = errors.New("market not resolved yet")
	ErrZeroStake          = errors.New("no stake to claim")
	ErrNoWinningPool      = errors.New("winning pool is empty")
	ErrFactUnavailable    = errors.New("fact unavailable")
	ErrStaleFact          = errors.New("fact outside staleness window")
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
)
