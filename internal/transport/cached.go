// Package transport downloads datasets over HTTP into a local file cache.
//
// A cached file is complete or absent: downloads stream into a temp file in
// the cache directory and are renamed over the final path only after the
// body has been fully received and synced. Writers of the same file are
// serialised across processes with a lock file and inside one process with
// singleflight.
package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"dex-market-data/internal/config"
	"dex-market-data/internal/domain"
	"dex-market-data/internal/idhash"
	"dex-market-data/internal/logging"
	"dex-market-data/internal/observability"
	"dex-market-data/internal/reader"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "dex-market-data"

const (
	lockPollInterval = 100 * time.Millisecond
	errorBodyLimit   = 4 << 10
)

// CachedTransport fetches datasets and keeps them in a cache directory.
// It is safe for concurrent use.
type CachedTransport struct {
	endpoint    string
	apiKey      string
	cacheDir    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	readTimeout time.Duration
	lockTimeout time.Duration
	chunkSize   int
	userAgent   string
	limiter     *rate.Limiter
	group       singleflight.Group
	logger      *logrus.Logger
	metrics     *observability.Metrics
}

// Option configures CachedTransport.
type Option func(*CachedTransport)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *CachedTransport) {
		t.client = client
	}
}

// WithLogger sets the logger. Without one nothing is logged.
func WithLogger(l *logrus.Logger) Option {
	return func(t *CachedTransport) {
		t.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *CachedTransport) {
		t.metrics = m
	}
}

// WithRateLimiter replaces the limiter built from Config.RequestsPerSecond.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(t *CachedTransport) {
		t.limiter = l
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *CachedTransport) {
		t.userAgent = ua
	}
}

// New creates a transport for cfg and makes sure the cache directory exists.
// The API key is checked lazily, on the first download.
func New(cfg config.Config, opts ...Option) (*CachedTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	t := &CachedTransport{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		cacheDir:    cfg.CacheDir,
		client:      newHTTPClient(cfg),
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		maxDelay:    cfg.MaxRetryDelay,
		readTimeout: cfg.ReadTimeout,
		lockTimeout: cfg.LockTimeout,
		chunkSize:   cfg.ChunkSize,
		userAgent:   DefaultUserAgent,
		limiter:     rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrDiscard(t.logger)
	return t, nil
}

// newHTTPClient bounds connecting and waiting for headers but sets no
// overall deadline; body reads are bounded by the idle reader.
func newHTTPClient(cfg config.Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ReadTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// CacheDir returns the cache directory.
func (t *CachedTransport) CacheDir() string {
	return t.cacheDir
}

// PathFor returns where req is cached, whether or not it has been fetched.
func (t *CachedTransport) PathFor(req domain.DatasetRequest) string {
	return filepath.Join(t.cacheDir, idhash.CacheFileName(req))
}

// Fetch returns the local path of the dataset, downloading it only when it
// is not cached or req.ForceRefresh is set.
//
// Concurrent calls for the same file share one download, which runs under
// the context of the first caller. Other callers stop waiting when their
// own context is done.
func (t *CachedTransport) Fetch(ctx context.Context, req domain.DatasetRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid dataset request: %w", err)
	}
	path := t.PathFor(req)
	dataset := req.Kind.String()

	if !req.ForceRefresh && fileExists(path) {
		t.metrics.RecordCacheLookup(dataset, true)
		return path, nil
	}
	t.metrics.RecordCacheLookup(dataset, false)

	if err := config.ValidateAPIKey(t.apiKey); err != nil {
		return "", err
	}

	key := path
	if req.ForceRefresh {
		key += "#refresh"
	}
	requested := time.Now()
	ch := t.group.DoChan(key, func() (any, error) {
		return t.fetchLocked(ctx, req, path, requested)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return path, nil
	}
}

// fetchLocked holds the cross-process lock for path while downloading.
// The cache is checked again once the lock is held: another process may
// have written the file while we waited.
//
// The cache directory is created again if it was deleted after New.
func (t *CachedTransport) fetchLocked(ctx context.Context, req domain.DatasetRequest, path string, requested time.Time) (Entry, error) {
	log := t.logger.WithFields(logrus.Fields{"dataset": req.Kind, "path": path})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Entry{}, fmt.Errorf("%w: create cache dir: %w", domain.ErrDownloadFailed, err)
	}

	lockCtx := ctx
	if t.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, t.lockTimeout)
		defer cancel()
	}

	lock := flock.New(path + ".lock")
	waitStart := time.Now()
	locked, err := lock.TryLockContext(lockCtx, lockPollInterval)
	t.metrics.RecordLockWait(time.Since(waitStart))
	if err != nil || !locked {
		switch {
		case ctx.Err() != nil:
			return Entry{}, ctx.Err()
		case lockCtx.Err() != nil:
			return Entry{}, fmt.Errorf("%w: timed out after %v waiting for another writer of %s",
				domain.ErrDownloadFailed, t.lockTimeout, path)
		case err != nil:
			return Entry{}, fmt.Errorf("%w: open cache lock %s: %w",
				domain.ErrDownloadFailed, lock.Path(), err)
		}
		return Entry{}, fmt.Errorf("%w: could not lock %s", domain.ErrDownloadFailed, lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warnf("Failed to release cache lock: %v", err)
		}
	}()

	if fileExists(path) {
		if !req.ForceRefresh {
			log.Debug("Dataset written by another process while waiting for lock")
			return t.entryFor(req, path), nil
		}
		if e, err := readEntry(path); err == nil && e.DownloadedAt.After(requested) {
			log.Debug("Dataset refreshed by another process while waiting for lock")
			return e, nil
		}
	}

	return t.download(ctx, req, path)
}

func (t *CachedTransport) download(ctx context.Context, req domain.DatasetRequest, path string) (Entry, error) {
	dataset := req.Kind.String()
	target := t.datasetURL(req)
	log := t.logger.WithFields(logrus.Fields{"dataset": dataset, "path": path})
	log.Infof("Downloading %s", target)

	start := time.Now()
	attempts := 0
	var entry Entry
	err := t.retry(ctx, dataset, &attempts, func() error {
		e, err := t.downloadOnce(ctx, req, target, path)
		if err != nil {
			return classify(ctx, err)
		}
		entry = e
		return nil
	})
	err = finalError(ctx, "download "+target, attempts, err)
	t.metrics.RecordDownload(dataset, statusOf(err), entry.Size, time.Since(start))
	if err != nil {
		log.WithField("status", statusOf(err)).Errorf("Download failed: %v", err)
		return Entry{}, err
	}

	if err := writeEntry(entry); err != nil {
		// The dataset itself is in place; only the sidecar is missing.
		log.Warnf("Failed to write cache metadata: %v", err)
	}
	log.WithField("bytes", entry.Size).Infof("Downloaded in %v", time.Since(start).Round(time.Millisecond))
	return entry, nil
}

// downloadOnce makes one attempt. On any error the temp file is removed
// and the cache is left as it was.
func (t *CachedTransport) downloadOnce(ctx context.Context, req domain.DatasetRequest, target, path string) (Entry, error) {
	resp, body, cancel, err := t.get(ctx, target)
	if err != nil {
		return Entry{}, err
	}
	defer cancel()
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return Entry{}, localIOError(fmt.Errorf("create temp file: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hash := sha256.New()
	w := io.MultiWriter(tmp, hash)

	switch {
	case req.Kind == domain.DatasetCandlesJSONL:
		cw := reader.NewCandleWriter(w)
		n, err := decodeJSONL(body, target, func(c domain.Candle) error {
			if err := cw.Write(c); err != nil {
				return localIOError(fmt.Errorf("write candles: %w", err))
			}
			return nil
		})
		if err != nil {
			return Entry{}, truncation(err)
		}
		if n == 0 {
			return Entry{}, fmt.Errorf("%w: no candles for pairs %v in the requested window",
				domain.ErrDataUnavailable, idhash.SortedPairIDs(req.PairIDs))
		}
		if err := cw.Close(); err != nil {
			return Entry{}, localIOError(fmt.Errorf("write candles: %w", err))
		}

	case req.Kind == domain.DatasetExchangeUniverse:
		data, err := io.ReadAll(body)
		if err != nil {
			return Entry{}, truncation(err)
		}
		if msg, ok := jsonErrorBody(data); ok {
			return Entry{}, &ServerError{URL: target, Message: msg}
		}
		if _, err := w.Write(data); err != nil {
			return Entry{}, localIOError(fmt.Errorf("write temp file: %w", err))
		}

	default:
		if isJSONResponse(resp) {
			data, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
			msg, ok := jsonErrorBody(data)
			if !ok {
				msg = string(data)
			}
			return Entry{}, &ServerError{URL: target, Message: msg}
		}
		n, err := io.CopyBuffer(w, body, make([]byte, t.chunkSize))
		if err != nil {
			return Entry{}, truncation(err)
		}
		if resp.ContentLength >= 0 && n != resp.ContentLength {
			return Entry{}, fmt.Errorf("%w: got %d of %d bytes", errTruncated, n, resp.ContentLength)
		}
	}

	if err := tmp.Sync(); err != nil {
		return Entry{}, localIOError(fmt.Errorf("sync temp file: %w", err))
	}
	info, err := tmp.Stat()
	if err != nil {
		return Entry{}, localIOError(fmt.Errorf("stat temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, localIOError(fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Entry{}, localIOError(fmt.Errorf("move download into cache: %w", err))
	}
	committed = true

	e := newEntry(req, path)
	e.DownloadedAt = time.Now().UTC()
	e.ETag = resp.Header.Get("ETag")
	e.SHA256 = hex.EncodeToString(hash.Sum(nil))
	e.Size = info.Size()
	e.URL = target
	return e, nil
}

// get sends an authorised GET and returns the response with its body
// wrapped in an idle timeout. Non-2xx replies become *HTTPError.
// The caller must call cancel and close resp.Body.
func (t *CachedTransport) get(ctx context.Context, target string) (*http.Response, io.Reader, context.CancelFunc, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, nil, nil, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, localIOError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Authorization", t.apiKey)
	httpReq.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("request %s: %w", target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		cancel()
		return nil, nil, nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        target,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if t.readTimeout <= 0 {
		return resp, resp.Body, cancel, nil
	}
	idle := newIdleReader(resp.Body, t.readTimeout, cancel)
	return resp, idle, func() {
		idle.stop()
		cancel()
	}, nil
}

// GetJSON calls an uncached JSON endpoint such as "ping" and decodes the
// reply into out. It follows the same retry and error policy as Fetch.
func (t *CachedTransport) GetJSON(ctx context.Context, apiPath string, params url.Values, out any) error {
	if err := config.ValidateAPIKey(t.apiKey); err != nil {
		return err
	}
	target := t.url(apiPath, params)

	attempts := 0
	err := t.retry(ctx, apiPath, &attempts, func() error {
		resp, body, cancel, err := t.get(ctx, target)
		if err != nil {
			return classify(ctx, err)
		}
		defer cancel()
		defer resp.Body.Close()

		data, err := io.ReadAll(body)
		if err != nil {
			return classify(ctx, truncation(err))
		}
		if msg, ok := jsonErrorBody(data); ok {
			return classify(ctx, &ServerError{URL: target, Message: msg})
		}
		if err := json.Unmarshal(data, out); err != nil {
			return classify(ctx, &ServerError{URL: target, Message: "malformed JSON: " + err.Error()})
		}
		return nil
	})
	return finalError(ctx, "get "+target, attempts, err)
}

func (t *CachedTransport) datasetURL(req domain.DatasetRequest) string {
	params := url.Values{}
	switch req.Kind {
	case domain.DatasetPairUniverse:
		return t.url("pair-universe", nil)
	case domain.DatasetExchangeUniverse:
		return t.url("exchange-universe", nil)
	case domain.DatasetCandles:
		params.Set("bucket", req.Bucket.String())
		return t.url("candles-all", params)
	case domain.DatasetLiquidity:
		params.Set("bucket", req.Bucket.String())
		return t.url("liquidity-all", params)
	}

	ids := idhash.SortedPairIDs(req.PairIDs)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	params.Set("pair_ids", strings.Join(parts, ","))
	params.Set("time_bucket", req.Bucket.String())
	if !req.Start.IsZero() {
		params.Set("start_time", req.Start.UTC().Format(time.RFC3339))
	}
	if end := idhash.TruncateEnd(req.Bucket, req.End); !end.IsZero() {
		params.Set("end_time", end.UTC().Format(time.RFC3339))
	}
	if req.MaxBytes > 0 {
		params.Set("max_bytes", strconv.FormatInt(req.MaxBytes, 10))
	}
	return t.url("candles-jsonl", params)
}

func (t *CachedTransport) url(apiPath string, params url.Values) string {
	u := t.endpoint + "/" + strings.TrimLeft(apiPath, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// CacheStatus reports whether req is cached and, if so, what is known
// about the cached file.
func (t *CachedTransport) CacheStatus(req domain.DatasetRequest) (Entry, Status) {
	path := t.PathFor(req)
	if !fileExists(path) {
		return newEntry(req, path), StatusMissing
	}
	return t.entryFor(req, path), StatusCached
}

// Entries lists cached datasets, sorted by path. Files without a sidecar
// are reported with what the file system knows. A deleted cache
// directory is an empty cache.
func (t *CachedTransport) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(t.cacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	var out []Entry
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !isDatasetFile(name) {
			continue
		}
		path := filepath.Join(t.cacheDir, name)
		e, err := readEntry(path)
		if err != nil {
			e = Entry{Path: path}
			if info, err := d.Info(); err == nil {
				e.Size = info.Size()
				e.DownloadedAt = info.ModTime().UTC()
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Purge removes one cached file and its sidecar so the next Fetch
// downloads it again. Purging a file that is not there is not an error.
func (t *CachedTransport) Purge(path string) error {
	path, err := t.inCache(path)
	if err != nil {
		return err
	}
	log := t.logger.WithField("path", path)

	err = os.Remove(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("Nothing to purge, file not cached")
	case err != nil:
		return fmt.Errorf("purge %s: %w", path, err)
	default:
		log.Info("Purged cached dataset")
	}
	if err := os.Remove(metaPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("purge %s: %w", metaPath(path), err)
	}
	return nil
}

// PurgeRequest purges the cache file of req.
func (t *CachedTransport) PurgeRequest(req domain.DatasetRequest) error {
	return t.Purge(t.PathFor(req))
}

// PurgeAll removes every cached dataset with its sidecar and returns how
// many were removed. Lock files and the temp files of downloads in
// progress are left alone; another writer may own them. A download that
// finishes after PurgeAll has run lands in the cache as usual.
func (t *CachedTransport) PurgeAll() (int, error) {
	dirents, err := os.ReadDir(t.cacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list cache dir: %w", err)
	}
	removed := 0
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !(isDatasetFile(name) || isMetaFile(name)) {
			continue
		}
		if err := os.Remove(filepath.Join(t.cacheDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("purge %s: %w", name, err)
		}
		if isDatasetFile(name) {
			removed++
		}
	}
	t.logger.WithField("path", t.cacheDir).Infof("Purged %d cached datasets", removed)
	return removed, nil
}

// inCache resolves path and refuses anything outside the cache directory.
func (t *CachedTransport) inCache(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.cacheDir, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(t.cacheDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to purge %s: not inside cache dir %s", path, t.cacheDir)
	}
	return path, nil
}

func (t *CachedTransport) entryFor(req domain.DatasetRequest, path string) Entry {
	if e, err := readEntry(path); err == nil {
		return e
	}
	e := newEntry(req, path)
	if info, err := os.Stat(path); err == nil {
		e.Size = info.Size()
		e.DownloadedAt = info.ModTime().UTC()
	}
	return e
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDatasetFile(name string) bool {
	if isMetaFile(name) || strings.HasSuffix(name, ".lock") || strings.Contains(name, ".tmp") {
		return false
	}
	return strings.HasSuffix(name, ".parquet") || strings.HasSuffix(name, ".json")
}

func isJSONResponse(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
}

// jsonErrorBody reports whether data is an object with an "error" key.
func jsonErrorBody(data []byte) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return "", false
	}
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || !hasError(body.Error) {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(body.Error, &msg); err == nil {
		return msg, true
	}
	return string(body.Error), true
}

// truncation marks a body that ended early as retryable truncation.
func truncation(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", errTruncated, err)
	}
	return err
}

// localIOError marks local file system failures. Retrying the
// download does not fix a full disk.
func localIOError(err error) error {
	return &localError{err: err}
}

type localError struct{ err error }

func (e *localError) Error() string { return e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

func statusOf(err error) string {
	switch {
	case err == nil:
		return observability.StatusOK
	case errors.Is(err, domain.ErrAuthentication):
		return observability.StatusAuth
	case errors.Is(err, domain.ErrNotFound):
		return observability.StatusNotFound
	case errors.Is(err, domain.ErrDataUnavailable):
		return observability.StatusUnavailable
	}
	return observability.StatusFailed
}
