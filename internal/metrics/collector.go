// Package metrics holds the prometheus collectors of the auth core. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scribe"

type Collector struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	lockouts      *prometheus.CounterVec
	otpSent       *prometheus.CounterVec
	secondFactor  *prometheus.CounterVec
	hashSeconds   *prometheus.HistogramVec
	droppedEvents prometheus.CounterFunc
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts by outcome.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh token rotations by outcome.",
		}, []string{"result"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Requests rejected by the lockout guard.",
		}, []string{"dimension"}),
		otpSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "otp_sent_total",
			Help:      "One-time codes issued, by purpose and delivery result.",
		}, []string{"purpose", "delivered"}),
		secondFactor: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "second_factor_total",
			Help:      "Second-factor verifications by method and outcome.",
		}, []string{"method", "result"}),
		hashSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "password_hash_seconds",
			Help:      "Wall-clock time of password hash and verify calls.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
	}

	reg.MustRegister(c.logins, c.refreshes, c.lockouts, c.otpSent, c.secondFactor, c.hashSeconds)
	return c
}

func (c *Collector) Login(result string) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) Refresh(result string) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(result).Inc()
}

func (c *Collector) Lockout(dimension string) {
	if c == nil {
		return
	}
	c.lockouts.WithLabelValues(dimension).Inc()
}

func (c *Collector) OTPSent(purpose string, delivered bool) {
	if c == nil {
		return
	}
	c.otpSent.WithLabelValues(purpose, strconv.FormatBool(delivered)).Inc()
}

func (c *Collector) SecondFactor(method, result string) {
	if c == nil {
		return
	}
	c.secondFactor.WithLabelValues(method, result).Inc()
}

// ObserveHash matches password.WithObserver.
func (c *Collector) ObserveHash(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.hashSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// TrackDroppedEvents exposes a counter read from fn at scrape time.
func (c *Collector) TrackDroppedEvents(reg prometheus.Registerer, fn func() uint64) {
	if c == nil || c.droppedEvents != nil {
		return
	}
	c.droppedEvents = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Security events dropped because the dispatch buffer was full.",
	}, func() float64 { return float64(fn()) })
	reg.MustRegister(c.droppedEvents)
}
