package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/trogers1052/nzx-scorer/internal/config"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// StatusError is returned for a non-2xx response from the endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delivery endpoint returned %d: %s", e.StatusCode, e.Body)
}

// HTTPSink posts scored batches and report files to the update endpoint
type HTTPSink struct {
	url         string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

// NewHTTPSink creates a sink from delivery configuration
func NewHTTPSink(cfg config.DeliveryConfig, log zerolog.Logger) *HTTPSink {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPSink{
		url:         cfg.URL,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxAttempts: attempts,
		backoff:     cfg.Backoff,
		log:         log.With().Str("module", "delivery").Logger(),
	}
}

// SendBatch posts the scored batch as JSON
func (s *HTTPSink) SendBatch(ctx context.Context, batch *models.ScoredBatch) error {
	if err := s.sendJSON(ctx, BuildPayload(batch)); err != nil {
		return fmt.Errorf("failed to send batch %s: %w", batch.RunID, err)
	}
	s.log.Info().
		Str("run_id", batch.RunID).
		Int("companies", len(batch.Companies)).
		Str("url", s.url).
		Msg("sent batch")
	return nil
}

// SendFailure posts the empty payload marking date as unsuccessful
func (s *HTTPSink) SendFailure(ctx context.Context, date time.Time) error {
	if err := s.sendJSON(ctx, FailurePayload(date)); err != nil {
		return fmt.Errorf("failed to send failure for %s: %w", date.Format(BatchDateFormat), err)
	}
	s.log.Info().Str("date", date.Format(BatchDateFormat)).Msg("sent unsuccessful scrape")
	return nil
}

// SendReports posts each PDF as its own multipart request, with the form
// field named after the file. Other files are skipped. It returns how many
// reports were sent.
func (s *HTTPSink) SendReports(ctx context.Context, paths []string) (int, error) {
	sent := 0
	for _, path := range paths {
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			s.log.Debug().Str("path", path).Msg("skipping non-pdf report")
			continue
		}
		if err := s.sendFile(ctx, path); err != nil {
			return sent, fmt.Errorf("failed to send report %s: %w", filepath.Base(path), err)
		}
		sent++
		s.log.Info().Str("file", filepath.Base(path)).Msg("sent report")
	}
	return sent, nil
}

func (s *HTTPSink) sendJSON(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}
	return s.retry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/plain")
		return req, nil
	})
}

func (s *HTTPSink) sendFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	name := filepath.Base(path)
	part, err := w.CreateFormFile(name, name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	body := buf.Bytes()
	return s.retry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	})
}

// retry posts the request built by newReq until it gets a 2xx, a 4xx, or
// runs out of attempts
func (s *HTTPSink) retry(ctx context.Context, newReq func() (*http.Request, error)) error {
	attempt := 0
	op := func() error {
		attempt++
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			io.Copy(io.Discard, resp.Body)
			return nil
		}

		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	bo := backoff.NewExponentialBackOff()
	if s.backoff > 0 {
		bo.InitialInterval = s.backoff
	}
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		s.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("delivery failed, retrying")
	})
}
