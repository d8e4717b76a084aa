package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"arthchain/core/events"
	"arthchain/core/types"
)

type TreasuryMetrics struct {
	epoch             prometheus.Gauge
	seigniorageMinted prometheus.Counter
	allocationErrors  prometheus.Counter
	bondedReserve     prometheus.Gauge
	bondsBought       *prometheus.CounterVec
	bondsRedeemed     *prometheus.CounterVec
	rewardsPaid       *prometheus.CounterVec
	oraclePrice       prometheus.Gauge
}

var (
	treasuryOnce     sync.Once
	treasuryRegistry *TreasuryMetrics
)

func Treasury() *TreasuryMetrics {
	treasuryOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "treasury_epoch",
				Help: "Current treasury epoch counter.",
			}),
			seigniorageMinted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "treasury_seigniorage_minted_total",
				Help: "Cumulative cash minted as seigniorage, in whole tokens.",
			}),
			allocationErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "treasury_allocation_errors_total",
				Help: "Number of failed allocateSeigniorage attempts by the keeper.",
			}),
			bondedReserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "treasury_bond_reserve",
				Help: "Cash reserved for bond redemption, in whole tokens.",
			}),
			bondsBought: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_bonds_bought_total",
				Help: "Count of bond purchases by outcome.",
			}, []string{"outcome"}),
			bondsRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_bonds_redeemed_total",
				Help: "Count of bond redemptions by outcome.",
			}, []string{"outcome"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "boardroom_rewards_paid_total",
				Help: "Count of boardroom reward claims by boardroom.",
			}, []string{"boardroom"}),
			oraclePrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "oracle_cash_price",
				Help: "Latest observed oracle cash price, 1.0 = peg.",
			}),
		}
		prometheus.MustRegister(
			treasuryRegistry.epoch,
			treasuryRegistry.seigniorageMinted,
			treasuryRegistry.allocationErrors,
			treasuryRegistry.bondedReserve,
			treasuryRegistry.bondsBought,
			treasuryRegistry.bondsRedeemed,
			treasuryRegistry.rewardsPaid,
			treasuryRegistry.oraclePrice,
		)
	})
	return treasuryRegistry
}

func (m *TreasuryMetrics) SetEpoch(epoch uint64) {
	if m == nil {
		return
	}
	m.epoch.Set(float64(epoch))
}

func (m *TreasuryMetrics) AddSeigniorageMinted(amount float64) {
	if m == nil {
		return
	}
	m.seigniorageMinted.Add(amount)
}

func (m *TreasuryMetrics) ObserveAllocationError() {
	if m == nil {
		return
	}
	m.allocationErrors.Inc()
}

func (m *TreasuryMetrics) SetBondReserve(amount float64) {
	if m == nil {
		return
	}
	m.bondedReserve.Set(amount)
}

func (m *TreasuryMetrics) ObserveBondPurchase(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.bondsBought.WithLabelValues(outcome).Inc()
}

func (m *TreasuryMetrics) ObserveBondRedemption(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.bondsRedeemed.WithLabelValues(outcome).Inc()
}

func (m *TreasuryMetrics) ObserveRewardPaid(boardroom string) {
	if m == nil {
		return
	}
	if boardroom == "" {
		boardroom = "unknown"
	}
	m.rewardsPaid.WithLabelValues(boardroom).Inc()
}

func (m *TreasuryMetrics) SetOraclePrice(price float64) {
	if m == nil {
		return
	}
	m.oraclePrice.Set(price)
}

// ObserveEvent maps a committed ledger event onto the collectors it feeds.
// Volume counters scale down to whole tokens.
func (m *TreasuryMetrics) ObserveEvent(evt *types.Event) {
	if m == nil || evt == nil {
		return
	}
	switch evt.Type {
	case events.TypeSeigniorageMinted:
		m.AddSeigniorageMinted(wholeTokens(evt.Attributes["amount"]))
	case events.TypeBoughtBonds:
		m.ObserveBondPurchase("ok")
	case events.TypeRedeemedBonds:
		m.ObserveBondRedemption("ok")
	case events.TypeRewardPaid:
		m.ObserveRewardPaid(evt.Attributes["boardroom"])
	}
}

func wholeTokens(amount string) float64 {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return 0
	}
	scaled, _ := new(big.Float).SetInt(value).Float64()
	return scaled / 1e18
}
