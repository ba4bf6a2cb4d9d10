package session

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snpublisher/pkg/config"
	"snpublisher/pkg/errors"
	"snpublisher/pkg/logger"
	"snpublisher/pkg/proxy"
)

// fakePlatform implements PlatformSession and records every call
type fakePlatform struct {
	bindCalls  int
	probeCalls int
	loginCalls int
	clearCalls int

	probeErr error
	loginErr error
	bindErr  error
}

func (f *fakePlatform) BindProxy(proxyURL *url.URL) error {
	f.bindCalls++
	return f.bindErr
}

func (f *fakePlatform) Probe(ctx context.Context) error {
	f.probeCalls++
	return f.probeErr
}

func (f *fakePlatform) Login(ctx context.Context) error {
	f.loginCalls++
	return f.loginErr
}

func (f *fakePlatform) ClearSession() error {
	f.clearCalls++
	return nil
}

// sessionProber assigns each descriptor session a stable unique IP
type sessionProber struct {
	countryCode string
	ips         map[string]string
}

func (s *sessionProber) Probe(ctx context.Context, d proxy.Descriptor) (*proxy.IPInfo, error) {
	if s.ips == nil {
		s.ips = make(map[string]string)
	}
	ip, ok := s.ips[d.Session]
	if !ok {
		ip = fmt.Sprintf("10.0.0.%d", len(s.ips)+1)
		s.ips[d.Session] = ip
	}
	return &proxy.IPInfo{
		Query:       ip,
		Country:     "Spain",
		CountryCode: s.countryCode,
		City:        "madrid",
	}, nil
}

func guardProxyConfig(fanout int) *config.ProxyConfig {
	return &config.ProxyConfig{
		Host:             "gw.example.com",
		Port:             "12321",
		Username:         "user",
		Password:         "pass",
		BaseSessions:     []string{"alpha"},
		CountryCode:      "ES",
		CountryName:      "Spain",
		City:             "madrid",
		RotationInterval: 25 * time.Minute,
		ProbeTimeout:     time.Second,
		MaxRetries:       3,
		SessionFanout:    fanout,
	}
}

func newTestGuard(t *testing.T, platform *fakePlatform, prober proxy.Prober, cfg *config.ProxyConfig) (*Guard, *proxy.Pool, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	pool, err := proxy.NewPool(cfg, prober, log)
	require.NoError(t, err)
	return NewGuard(platform, pool, log), pool, log
}

func TestValidateHealthyPath(t *testing.T) {
	platform := &fakePlatform{}
	guard, pool, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateHealthy, result.State)
	assert.Equal(t, StateHealthy, guard.State())
	assert.Equal(t, 1, platform.bindCalls)
	assert.Equal(t, 1, platform.probeCalls)
	assert.Zero(t, platform.loginCalls)
	require.NotNil(t, pool.Current())
}

func TestValidateChallengeFailsWithoutRelogin(t *testing.T) {
	platform := &fakePlatform{
		probeErr: errors.New(errors.ErrorTypeChallenge, "challenge_required"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateFailed, result.State)
	assert.Zero(t, platform.loginCalls, "challenge must never trigger a re-login")
	assert.Zero(t, platform.clearCalls)
}

func TestValidateRateLimitFailsWithoutRelogin(t *testing.T) {
	platform := &fakePlatform{
		probeErr: errors.New(errors.ErrorTypeRateLimit, "rate_limit_error"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateFailed, result.State)
	assert.Zero(t, platform.loginCalls)
}

func TestValidateLoginRequiredTriggersExactlyOneRelogin(t *testing.T) {
	platform := &fakePlatform{
		probeErr: errors.New(errors.ErrorTypeLoginRequired, "login_required"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateHealthy, result.State)
	assert.Equal(t, 1, platform.clearCalls, "stored session must be cleared before re-login")
	assert.Equal(t, 1, platform.loginCalls, "exactly one re-login per validation pass")
}

func TestValidateReloginFailureIsTerminal(t *testing.T) {
	platform := &fakePlatform{
		probeErr: errors.New(errors.ErrorTypeLoginRequired, "login_required"),
		loginErr: errors.New(errors.ErrorTypeNetwork, "connection reset"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 1, platform.loginCalls, "no second login attempt after a failed one")
}

func TestValidateTransientFailureDegrades(t *testing.T) {
	platform := &fakePlatform{
		probeErr: errors.New(errors.ErrorTypeNetwork, "i/o timeout"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateDegraded, result.State)
	assert.Zero(t, platform.loginCalls)
}

func TestValidateUnclassifiedFailureDegrades(t *testing.T) {
	platform := &fakePlatform{
		probeErr: fmt.Errorf("something unexpected"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())
	assert.Equal(t, StateDegraded, result.State)
}

func TestValidateGeoMismatchDegradesBeforePlatformProbe(t *testing.T) {
	platform := &fakePlatform{}
	guard, _, log := newTestGuard(t, platform, &sessionProber{countryCode: "FR"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())

	assert.Equal(t, StateDegraded, result.State)
	assert.Zero(t, platform.probeCalls, "a bad egress must not spend a platform request")
	assert.True(t, log.HasMessage("WARN", "forcing rotation"))
}

func TestValidateBindFailureDegrades(t *testing.T) {
	platform := &fakePlatform{
		bindErr: fmt.Errorf("transport wedged"),
	}
	guard, _, _ := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, guardProxyConfig(5))

	result := guard.Validate(context.Background())
	assert.Equal(t, StateDegraded, result.State)
	assert.Zero(t, platform.probeCalls)
}

// With a zero rotation interval every validation rotates, so five passes
// drain a five-proxy universe and the sixth forces an epoch reset.
func TestValidateCyclesEntirePoolThenResets(t *testing.T) {
	platform := &fakePlatform{}
	cfg := guardProxyConfig(5)
	cfg.RotationInterval = 0

	guard, pool, log := newTestGuard(t, platform, &sessionProber{countryCode: "ES"}, cfg)
	require.Equal(t, 5, pool.Size())

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		result := guard.Validate(context.Background())
		require.Equal(t, StateHealthy, result.State, "pass %d", i+1)
		require.NotNil(t, pool.Current())
		assert.False(t, seen[pool.Current().IP], "pass %d reused IP %s", i+1, pool.Current().IP)
		seen[pool.Current().IP] = true
	}
	assert.False(t, log.HasMessage("INFO", "resetting epoch"))

	result := guard.Validate(context.Background())
	assert.Equal(t, StateHealthy, result.State)
	assert.True(t, log.HasMessage("INFO", "resetting epoch"),
		"sixth pass must recycle the exhausted universe")
	assert.True(t, seen[pool.Current().IP], "post-reset IP comes from the prior epoch")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unvalidated", StateUnvalidated.String())
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
