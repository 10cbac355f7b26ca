package settle

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predly/settler/internal/domain"
)

func eth(n float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(n), big.NewFloat(1e18))
	out, _ := wei.Int(nil)
	return out
}

// Spec scenario: yes=6 ETH, no=4 ETH, feeBps=250, a 1 ETH YES staker gets
// gross = 1*10/6 ETH, fee = 2.5% of gross, net = gross - fee.
func TestPayout_SpecScenario(t *testing.T) {
	res, err := Payout(eth(1), eth(6), eth(4), 250)
	require.NoError(t, err)

	wantGross, _ := new(big.Int).SetString("1666666666666666666", 10)
	assert.Equal(t, wantGross, res.Gross)

	wantFee := new(big.Int).Quo(new(big.Int).Mul(wantGross, big.NewInt(250)), big.NewInt(10000))
	assert.Equal(t, wantFee, res.Fee)
	assert.Equal(t, new(big.Int).Sub(wantGross, wantFee), res.Net)

	// net ~ 1.625 ETH
	net, _ := new(big.Float).SetInt(res.Net).Float64()
	assert.InDelta(t, 1.625e18, net, 1e15)
}

// Winners' nets plus fees never exceed the total pool, with at most one unit
// of truncation lost per claimant.
func TestPayout_TruncationFavorsPool(t *testing.T) {
	winning := big.NewInt(7)
	losing := big.NewInt(5)
	total := new(big.Int).Add(winning, losing)

	paid := new(big.Int)
	stakes := []*big.Int{big.NewInt(3), big.NewInt(3), big.NewInt(1)}
	for _, stake := range stakes {
		res, err := Payout(stake, winning, losing, 250)
		require.NoError(t, err)
		paid.Add(paid, res.Net)
		paid.Add(paid, res.Fee)
	}

	assert.True(t, paid.Cmp(total) <= 0, "paid %s exceeds pool %s", paid, total)
	slack := new(big.Int).Sub(total, paid)
	assert.True(t, slack.Cmp(big.NewInt(int64(len(stakes)))) <= 0,
		"truncation slack %s exceeds one unit per claimant", slack)
}

func TestPayout_ZeroStakeIsNoop(t *testing.T) {
	res, err := Payout(new(big.Int), eth(6), eth(4), 250)
	require.NoError(t, err)
	assert.Zero(t, res.Gross.Sign())
	assert.Zero(t, res.Net.Sign())
}

func TestPayout_EmptyWinningPoolFailsLoudly(t *testing.T) {
	_, err := Payout(eth(1), new(big.Int), eth(5), 250)
	assert.ErrorIs(t, err, domain.ErrNoWinningPool)
}

func TestPayout_ZeroFee(t *testing.T) {
	res, err := Payout(big.NewInt(100), big.NewInt(100), big.NewInt(100), 0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), res.Gross)
	assert.Zero(t, res.Fee.Sign())
	assert.Equal(t, big.NewInt(200), res.Net)
}

func TestRefund_FullStakeNoFee(t *testing.T) {
	stake := domain.UserStake{YesAmount: new(big.Int), NoAmount: eth(5)}
	res := Refund(stake)
	assert.Equal(t, domain.SettlementRefund, res.Kind)
	assert.Equal(t, eth(5), res.Refund)
	assert.Equal(t, eth(5), res.Owed())
}

func resolvedMarket(winner domain.Side, yes, no *big.Int) domain.Market {
	return domain.Market{
		ID:        7,
		ExpiresAt: time.Now().Add(-time.Hour),
		YesPool:   yes,
		NoPool:    no,
		Status:    domain.MarketStatusResolved,
		Winner:    &winner,
	}
}

func TestForVerdict_Resolved(t *testing.T) {
	market := resolvedMarket(domain.SideYes, eth(6), eth(4))
	stake := domain.UserStake{
		MarketID:    7,
		Participant: common.HexToAddress("0x1"),
		YesAmount:   eth(1),
		NoAmount:    new(big.Int),
	}

	res, err := ForVerdict(market, stake, 250)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementWin, res.Kind)
	assert.Positive(t, res.Net.Sign())
}

func TestForVerdict_LoserGetsZero(t *testing.T) {
	market := resolvedMarket(domain.SideYes, eth(6), eth(4))
	stake := domain.UserStake{YesAmount: new(big.Int), NoAmount: eth(2)}

	res, err := ForVerdict(market, stake, 250)
	require.NoError(t, err)
	assert.Zero(t, res.Owed().Sign())
}

func TestForVerdict_Cancelled(t *testing.T) {
	market := domain.Market{
		Status:  domain.MarketStatusCancelled,
		YesPool: new(big.Int),
		NoPool:  eth(5),
	}
	stake := domain.UserStake{YesAmount: new(big.Int), NoAmount: eth(5)}

	res, err := ForVerdict(market, stake, 250)
	require.NoError(t, err)
	assert.Equal(t, eth(5), res.Owed())
}

func TestForVerdict_Rejections(t *testing.T) {
	open := domain.Market{Status: domain.MarketStatusActive, YesPool: eth(1), NoPool: eth(1)}
	_, err := ForVerdict(open, domain.UserStake{YesAmount: eth(1), NoAmount: new(big.Int)}, 250)
	assert.ErrorIs(t, err, domain.ErrMarketOpen)

	cancelled := domain.Market{Status: domain.MarketStatusCancelled, YesPool: eth(1), NoPool: eth(1)}
	_, err = ForVerdict(cancelled, domain.UserStake{YesAmount: new(big.Int), NoAmount: new(big.Int)}, 250)
	assert.ErrorIs(t, err, domain.ErrZeroStake)
}
