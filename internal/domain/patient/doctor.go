package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/connectmydoc/patients/internal/platform/metrics"
)

// DoctorDirectory answers whether a doctor id is known to the external
// doctor service.
type DoctorDirectory interface {
	VerifyDoctor(ctx context.Context, id int64) (bool, error)
}

type DoctorDirectoryConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// HTTPDoctorDirectory calls GET {base}/api/Doctor/{id}. Transport failures
// and 5xx answers are retried with exponential backoff; any other non-2xx
// answer except 404 is an UnexpectedApiResponse.
type HTTPDoctorDirectory struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	initial    time.Duration
}

func NewHTTPDoctorDirectory(cfg DoctorDirectoryConfig) *HTTPDoctorDirectory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	return &HTTPDoctorDirectory{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialBackoff,
	}
}

// serverError marks a retryable 5xx answer.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("doctor directory returned %d", e.status)
}

func (d *HTTPDoctorDirectory) VerifyDoctor(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	url := d.baseURL + "/api/Doctor/" + strconv.FormatInt(id, 10)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initial

	found, err := backoff.Retry(ctx, func() (bool, error) {
		return d.lookup(ctx, url)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.maxRetries+1)),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	var se *serverError
	if errors.As(err, &se) {
		err = unexpectedStatus(se.status)
	}

	switch {
	case err != nil:
		metrics.RecordDoctorLookup("error", time.Since(start))
		return false, err
	case found:
		metrics.RecordDoctorLookup("found", time.Since(start))
	default:
		metrics.RecordDoctorLookup("not_found", time.Since(start))
	}
	return found, nil
}

func (d *HTTPDoctorDirectory) lookup(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, backoff.Permanent(fmt.Errorf("build doctor request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, backoff.Permanent(err)
		}
		return false, fmt.Errorf("doctor directory request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, &serverError{status: resp.StatusCode}
	default:
		return false, backoff.Permanent(unexpectedStatus(resp.StatusCode))
	}
}

// Cache is the string cache used to remember verified doctors.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CachedDoctorDirectory remembers positive verifications for ttl. Cache
// errors are logged and fall through to the wrapped directory.
type CachedDoctorDirectory struct {
	next   DoctorDirectory
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedDoctorDirectory(next DoctorDirectory, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedDoctorDirectory {
	return &CachedDoctorDirectory{next: next, cache: cache, ttl: ttl, logger: logger}
}

func doctorCacheKey(id int64) string {
	return "doctor:" + strconv.FormatInt(id, 10)
}

func (d *CachedDoctorDirectory) VerifyDoctor(ctx context.Context, id int64) (bool, error) {
	key := doctorCacheKey(id)

	_, hit, err := d.cache.Get(ctx, key)
	if err != nil {
		d.logger.Warn().Err(err).Int64("doctor_id", id).Msg("doctor cache read failed")
	} else if hit {
		metrics.RecordDoctorLookup("cached", 0)
		return true, nil
	}

	found, err := d.next.VerifyDoctor(ctx, id)
	if err != nil || !found {
		return found, err
	}

	if err := d.cache.Set(ctx, key, "1", d.ttl); err != nil {
		d.logger.Warn().Err(err).Int64("doctor_id", id).Msg("doctor cache write failed")
	}
	return true, nil
}
