// Package material fetches chapter and question material over HTTP and keeps
// the last good copy in the key-value store so it can be served offline.
package material

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/quizbox/internal/storage"
	"github.com/example/quizbox/pkg/models"
)

// DefaultTimeout bounds a single material request
const DefaultTimeout = 60 * time.Second

const (
	cachePrefix     = "material:"
	chaptersListKey = cachePrefix + "_chapters"
	cacheOrigin     = "material-loader"
)

// ErrNoMaterial is returned when material could neither be fetched nor found in the cache
var ErrNoMaterial = errors.New("no material available")

// Config configures a Loader
type Config struct {
	// BaseURL is the site root serving /material/*.json. Empty means offline.
	BaseURL    string
	AppVersion string
	Timeout    time.Duration
	Client     *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

type cached[T any] struct {
	Data    T     `json:"data"`
	Fetched int64 `json:"fetched"`
}

// Loader loads material from the network with a cache fallback
type Loader struct {
	kv     storage.KV
	base   string
	ver    string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewLoader creates a Loader caching into kv
func NewLoader(kv storage.KV, cfg Config) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{
		kv:     kv,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		ver:    cfg.AppVersion,
		client: cfg.Client,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// CacheKey returns the key chapter material is cached under
func CacheKey(chID string) string {
	return cachePrefix + chID
}

// Chapters returns the chapter list
func (l *Loader) Chapters(ctx context.Context) ([]models.Chapter, error) {
	chapters, err := load[[]models.Chapter](ctx, l, "chapters", chaptersListKey)
	if err != nil {
		return nil, err
	}
	for i := range chapters {
		if chapters[i].CoverageItems == nil {
			chapters[i].CoverageItems = []string{}
		}
	}
	return chapters, nil
}

// Chapter returns the questions of one chapter
func (l *Loader) Chapter(ctx context.Context, chID string) ([]models.Question, error) {
	if chID == "" {
		return nil, fmt.Errorf("chapter id cannot be empty")
	}
	return load[[]models.Question](ctx, l, chID, CacheKey(chID))
}

// Put stores questions as the cached material of a chapter
func (l *Loader) Put(ctx context.Context, chID string, questions []models.Question) error {
	if questions == nil {
		questions = []models.Question{}
	}
	return l.store(ctx, CacheKey(chID), cached[[]models.Question]{Data: questions, Fetched: l.now().UnixMilli()})
}

// PutChapters stores the chapter list in the cache
func (l *Loader) PutChapters(ctx context.Context, chapters []models.Chapter) error {
	if chapters == nil {
		chapters = []models.Chapter{}
	}
	return l.store(ctx, chaptersListKey, cached[[]models.Chapter]{Data: chapters, Fetched: l.now().UnixMilli()})
}

// FetchedAt reports when the cached copy of a chapter was stored
func (l *Loader) FetchedAt(ctx context.Context, chID string) (time.Time, bool) {
	var c cached[json.RawMessage]
	if err := l.readCache(ctx, CacheKey(chID), &c); err != nil || c.Fetched == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(c.Fetched), true
}

func load[T any](ctx context.Context, l *Loader, name, key string) (T, error) {
	var zero T

	if l.base != "" {
		var data T
		err := l.fetch(ctx, name, &data)
		if err == nil {
			if err := l.store(ctx, key, cached[T]{Data: data, Fetched: l.now().UnixMilli()}); err != nil {
				l.logger.Warn("failed to cache material", "name", name, "error", err)
			}
			return data, nil
		}
		l.logger.Warn("material fetch failed, using cache", "name", name, "error", err)
	}

	var c cached[T]
	if err := l.readCache(ctx, key, &c); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return zero, fmt.Errorf("%s: %w", name, ErrNoMaterial)
		}
		return zero, err
	}
	return c.Data, nil
}

func (l *Loader) fetch(ctx context.Context, name string, out any) error {
	u := l.base + "/material/" + url.PathEscape(name) + ".json"
	if l.ver != "" {
		u += "?ver=" + url.QueryEscape(l.ver)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	l.logger.Info("fetching material", "name", name)
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("failed to fetch %s: status %d", name, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func (l *Loader) store(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if _, err := l.kv.Put(ctx, key, raw, storage.AnyVersion, cacheOrigin); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (l *Loader) readCache(ctx context.Context, key string, out any) error {
	e, err := l.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		l.logger.Warn("malformed material cache", "key", key, "error", err)
		return fmt.Errorf("%s: %w", key, ErrNoMaterial)
	}
	return nil
}
