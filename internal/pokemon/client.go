package pokemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"multiactivity/internal/config"
	"multiactivity/internal/session"

	"golang.org/x/sync/singleflight"
)

var (
	ErrPokemonNotFound = errors.New("pokemon not found")
	ErrInvalidName     = errors.New("invalid pokemon name")
	ErrUpstream        = errors.New("pokeapi unavailable")
)

const cachePrefix = "pokemon:"

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Lookup resolves a Pokémon by name
type Lookup interface {
	Get(ctx context.Context, name string) (*Pokemon, error)
}

// Client fetches Pokémon from PokeAPI and caches them
type Client struct {
	baseURL  string
	http     *http.Client
	cache    session.Store
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

// NewClient creates a PokeAPI client. cache may be nil.
func NewClient(cfg config.PokemonConfig, cache session.Store, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		logger:   logger.With("component", "pokeapi"),
	}
}

// NormalizeName lower-cases and validates a Pokémon name
func NormalizeName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if !validName.MatchString(n) {
		return "", ErrInvalidName
	}
	return n, nil
}

// Get returns the Pokémon called name. Concurrent lookups of the same name
// share one upstream request.
func (c *Client) Get(ctx context.Context, name string) (*Pokemon, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	if p, ok := c.cached(ctx, n); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(n, func() (any, error) {
		p, err := c.fetch(ctx, n)
		if err != nil {
			return nil, err
		}
		c.store(ctx, n, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*Pokemon)
	return &p, nil
}

func (c *Client) cached(ctx context.Context, name string) (*Pokemon, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, cachePrefix+name)
	if err != nil {
		if !errors.Is(err, session.ErrKeyNotFound) {
			c.logger.Warn("Pokemon cache read failed", "name", name, "error", err)
		}
		return nil, false
	}
	var p Pokemon
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *Client) store(ctx context.Context, name string, p *Pokemon) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cachePrefix+name, string(raw), c.cacheTTL); err != nil {
		c.logger.Warn("Pokemon cache write failed", "name", name, "error", err)
	}
}

// apiPokemon is the subset of the PokeAPI payload we read
type apiPokemon struct {
	Name    string `json:"name"`
	Sprites struct {
		FrontDefault string `json:"front_default"`
	} `json:"sprites"`
}

func (c *Client) fetch(ctx context.Context, name string) (*Pokemon, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pokemon/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPokemonNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body apiPokemon
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if body.Name == "" {
		return nil, ErrPokemonNotFound
	}

	return &Pokemon{Name: body.Name, Image: body.Sprites.FrontDefault}, nil
}
