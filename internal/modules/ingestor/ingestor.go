package ingestor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"questionpaper-ingest/internal/metrics"
	"questionpaper-ingest/internal/models"
	"questionpaper-ingest/internal/modules/pipeline"
	"questionpaper-ingest/internal/store"
)

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrLookup     = errors.New("lookup failed")
	ErrInsert     = errors.New("insert failed")
)

// Options tune an Ingestor. The zero value is usable.
type Options struct {
	OpTimeout time.Duration    // Bound on each store call; 0 means none
	Metrics   *metrics.Metrics // Optional
}

// Ingestor adds a record for every URL not yet present in the store.
type Ingestor struct {
	store  store.Store
	logger *zap.Logger
	opts   Options
}

// New creates an Ingestor writing to s.
func New(s store.Store, logger *zap.Logger, opts Options) *Ingestor {
	return &Ingestor{store: s, logger: logger, opts: opts}
}

// DeriveName returns the last segment of the URL path, still percent-encoded.
// A path ending in "/" yields an empty name.
func DeriveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	p := u.EscapedPath()
	return p[strings.LastIndex(p, "/")+1:], nil
}

// Ingest handles a single URL: lookup by url, then insert when absent.
// Failures are reported in the result, never returned.
func (i *Ingestor) Ingest(ctx context.Context, rawURL string) (res models.Result) {
	start := time.Now()
	res.URL = rawURL
	defer func() {
		res.Duration = time.Since(start)
		i.opts.Metrics.ObserveOutcome(res.Outcome.String())
	}()

	name, err := DeriveName(rawURL)
	if err != nil {
		res.Outcome, res.Err = models.OutcomeFailed, err
		return res
	}
	res.Name = name

	existing, err := i.lookup(ctx, rawURL)
	if err != nil {
		res.Outcome, res.Err = models.OutcomeFailed, fmt.Errorf("%w: %w", ErrLookup, err)
		return res
	}
	if len(existing) > 0 {
		res.Outcome = models.OutcomeExists
		return res
	}

	id, err := i.insert(ctx, models.Record{Name: name, URL: rawURL})
	if err != nil {
		res.Outcome, res.Err = models.OutcomeFailed, fmt.Errorf("%w: %w", ErrInsert, err)
		return res
	}
	res.Outcome, res.DocID = models.OutcomeAdded, id
	return res
}

// IngestAll processes urls strictly in order. It stops early only when ctx
// is canceled, returning the results gathered so far along with ctx.Err().
func (i *Ingestor) IngestAll(ctx context.Context, urls []string) ([]models.Result, error) {
	results := make([]models.Result, 0, len(urls))
	idx := 0
	next := func() (string, bool, error) {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if idx == len(urls) {
			return "", false, nil
		}
		idx++
		return urls[idx-1], true, nil
	}
	err := i.each(ctx, next, func(r models.Result) {
		results = append(results, r)
	})
	return results, err
}

// Execute is the pipeline stage form of IngestAll: URLs in, models.Result out.
// Every result is delivered, including the one in flight when ctx is
// canceled, so the next stage must drain its input until it is closed.
func (i *Ingestor) Execute(ctx context.Context, input <-chan interface{}, output chan<- interface{}, logger *zap.Logger) error {
	next := func() (string, bool, error) {
		for {
			if err := ctx.Err(); err != nil {
				return "", false, err
			}
			item, ok, err := pipeline.Receive(ctx, input)
			if err != nil || !ok {
				return "", false, err
			}
			u, isURL := item.(string)
			if !isURL {
				logger.Warn("invalid input type, expected string", zap.Any("type", item))
				continue
			}
			return u, true, nil
		}
	}
	err := i.each(ctx, next, func(r models.Result) {
		output <- r
	})
	if err != nil {
		logger.Warn("ingestion interrupted", zap.Error(err))
	}
	return err
}

// each ingests URLs from next, one at a time, until next reports the end
// or an error.
func (i *Ingestor) each(ctx context.Context, next func() (string, bool, error), emit func(models.Result)) error {
	for {
		u, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		emit(i.Ingest(ctx, u))
	}
}

func (i *Ingestor) lookup(ctx context.Context, rawURL string) ([]models.Record, error) {
	ctx, cancel := i.opContext(ctx)
	defer cancel()

	start := time.Now()
	recs, err := i.store.FindByURL(ctx, rawURL)
	i.opts.Metrics.ObserveStoreOp("lookup", time.Since(start), err)
	i.logger.Debug("lookup",
		zap.String("url", rawURL),
		zap.Int("matches", len(recs)),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	return recs, err
}

func (i *Ingestor) insert(ctx context.Context, rec models.Record) (string, error) {
	ctx, cancel := i.opContext(ctx)
	defer cancel()

	start := time.Now()
	id, err := i.store.Insert(ctx, rec)
	i.opts.Metrics.ObserveStoreOp("insert", time.Since(start), err)
	i.logger.Debug("insert",
		zap.String("url", rec.URL),
		zap.String("doc_id", id),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	return id, err
}

func (i *Ingestor) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.opts.OpTimeout > 0 {
		return context.WithTimeout(ctx, i.opts.OpTimeout)
	}
	return context.WithCancel(ctx)
}
