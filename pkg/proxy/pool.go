package proxy

import (
	"context"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"time"

	"snpublisher/pkg/config"
	"snpublisher/pkg/errors"
	"snpublisher/pkg/logger"
)

// Bound describes the currently bound proxy together with its resolved
// egress identity.
type Bound struct {
	Descriptor Descriptor
	URL        *url.URL
	IP         string
	Country    string
	City       string
}

// Pool owns the set of candidate proxies and hands out verified-unique
// connections. State is mutated only by the pool itself; the publisher
// drives it from a single control-flow path.
type Pool struct {
	cfg    *config.ProxyConfig
	log    logger.Logger
	prober Prober

	all       []Descriptor
	available []Descriptor
	usedIPs   map[string]struct{}

	current      *Bound
	lastRotation time.Time

	// swapped in tests
	now  func() time.Time
	rand *rand.Rand
}

// NewPool builds the proxy universe from the list file if present,
// otherwise generates it from the configured base sessions. Missing
// credentials or an empty universe fail construction.
func NewPool(cfg *config.ProxyConfig, prober Prober, log logger.Logger) (*Pool, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "proxy credentials not configured")
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if prober == nil {
		prober = NewHTTPProber(cfg.ProbeURL, cfg.ProbeTimeout)
	}

	p := &Pool{
		cfg:     cfg,
		log:     log,
		prober:  prober,
		usedIPs: make(map[string]struct{}),
		now:     time.Now,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if cfg.ListFile != "" {
		if _, err := os.Stat(cfg.ListFile); err == nil {
			descriptors, err := LoadDescriptors(cfg.ListFile, log)
			if err != nil {
				return nil, errors.Newf(errors.ErrorTypeConfig, "failed to load proxy list: %v", err)
			}
			p.all = descriptors
		}
	}

	if len(p.all) == 0 {
		if len(cfg.BaseSessions) == 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "no proxy list file and no base sessions configured")
		}
		log.Info("generating proxy list from base sessions")
		p.all = GenerateDescriptors(cfg)
	}

	if len(p.all) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "proxy universe is empty")
	}

	p.available = append(p.available, p.all...)
	log.InfoWithFields("initialized proxy pool", map[string]interface{}{
		"proxies": len(p.all),
	})

	return p, nil
}

// Size returns the number of descriptors in the universe.
func (p *Pool) Size() int {
	return len(p.all)
}

// Current returns the currently bound proxy, or nil before the first
// successful acquisition.
func (p *Pool) Current() *Bound {
	return p.current
}

// Acquire binds a proxy whose resolved IP has not been used in the current
// epoch. Attempts are bounded by min(MaxRetries, |universe|); probe failures
// and IP collisions consume an attempt and move on to the next candidate.
// When the available queue drains mid-search, the epoch resets: used-IP
// history is cleared and the queue is reseeded in shuffled order.
func (p *Pool) Acquire(ctx context.Context) (*Bound, error) {
	maxAttempts := p.cfg.MaxRetries
	if len(p.all) < maxAttempts {
		maxAttempts = len(p.all)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, errors.Newf(errors.ErrorTypeNetwork, "acquisition aborted: %v", ctx.Err())
		}

		if len(p.available) == 0 {
			p.resetEpoch()
		}

		candidate := p.available[0]
		p.available = p.available[1:]

		info, err := p.prober.Probe(ctx, candidate)
		if err != nil {
			p.log.WarnWithFields("proxy probe failed", map[string]interface{}{
				"attempt": attempt,
				"host":    candidate.Host,
				"session": candidate.Session,
				"error":   err.Error(),
			})
			continue
		}

		if _, dup := p.usedIPs[info.Query]; dup {
			// Collision: the candidate stays consumed for this epoch.
			p.log.WarnWithFields("duplicate proxy IP, trying next candidate", map[string]interface{}{
				"attempt": attempt,
				"ip":      info.Query,
			})
			continue
		}

		p.usedIPs[info.Query] = struct{}{}
		p.current = &Bound{
			Descriptor: candidate,
			URL:        candidate.URL(),
			IP:         info.Query,
			Country:    info.Country,
			City:       info.City,
		}
		p.lastRotation = p.now()

		p.log.InfoWithFields("bound new unique proxy", map[string]interface{}{
			"ip":      info.Query,
			"country": info.Country,
			"city":    info.City,
			"session": candidate.Session,
		})
		return p.current, nil
	}

	p.log.ErrorWithFields("failed to find unique proxy", map[string]interface{}{
		"attempts": maxAttempts,
	})
	return nil, errors.New(errors.ErrorTypePoolExhausted, "no unique proxy found within attempt budget")
}

// resetEpoch forgets used-IP history and reseeds the candidate queue in
// shuffled order so the same physical proxies can be reassigned.
func (p *Pool) resetEpoch() {
	p.log.Info("proxy pool exhausted, resetting epoch")
	p.usedIPs = make(map[string]struct{})
	p.available = p.available[:0]
	p.available = append(p.available, p.all...)
	p.rand.Shuffle(len(p.available), func(i, j int) {
		p.available[i], p.available[j] = p.available[j], p.available[i]
	})
}

// ShouldRotate reports whether the rotation interval has elapsed since the
// last successful bind. Pure time check, no side effects.
func (p *Pool) ShouldRotate() bool {
	return p.now().Sub(p.lastRotation) >= p.cfg.RotationInterval
}

// RotateIfDue acquires a fresh proxy when rotation is due and is a no-op
// success otherwise. This is the steady-state entry point; direct Acquire
// calls are reserved for initialization and forced rotation after failures.
func (p *Pool) RotateIfDue(ctx context.Context) error {
	if !p.ShouldRotate() {
		return nil
	}
	p.log.Info("rotation interval elapsed, rotating proxy")
	_, err := p.Acquire(ctx)
	return err
}

// ValidateActive re-probes the bound proxy and verifies its egress
// location. A country mismatch fails validation; a city mismatch is only
// logged since provider city-targeting is best-effort.
func (p *Pool) ValidateActive(ctx context.Context) error {
	if p.current == nil {
		return errors.New(errors.ErrorTypeNetwork, "no proxy bound")
	}

	info, err := p.prober.Probe(ctx, p.current.Descriptor)
	if err != nil {
		return err
	}

	p.log.InfoWithFields("active proxy location", map[string]interface{}{
		"ip":      info.Query,
		"country": info.Country,
		"city":    info.City,
		"isp":     info.ISP,
	})

	if !strings.EqualFold(info.CountryCode, p.cfg.CountryCode) {
		return errors.Newf(errors.ErrorTypeGeoMismatch,
			"wrong country %s (expected %s)", info.Country, p.cfg.CountryName)
	}

	if p.cfg.City != "" && !strings.EqualFold(info.City, p.cfg.City) {
		p.log.WarnWithFields("proxy egresses from a different city", map[string]interface{}{
			"city":     info.City,
			"expected": p.cfg.City,
		})
	}

	return nil
}
