package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrKeyNotFound is returned when a token names a key the authority does
	// not currently publish.
	ErrKeyNotFound = errors.New("signing key not published")
	// ErrKeysUnavailable is returned when no key set could be fetched.
	ErrKeysUnavailable = errors.New("signing keys unavailable")
)

const maxDocumentSize = 1 << 20

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// published is one fetched key set. It is never modified after it was built.
type published struct {
	storage jwkset.Storage
	kf      keyfunc.Keyfunc
	kids    map[string]struct{}
}

func (p *published) has(kid string) bool {
	_, ok := p.kids[kid]
	return ok
}

// KeySet caches the authority's published signing keys. Readers never block
// on a refresh: a refresh builds a new set and swaps it in.
type KeySet struct {
	discoveryURL string
	client       *http.Client
	fetchTimeout time.Duration
	observe      func(err error)

	current atomic.Pointer[published]
	limiter *rate.Limiter
	group   singleflight.Group
}

func NewKeySet(cfg Config, client *http.Client) *KeySet {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.MinRefreshGap > 0 {
		limit = rate.Every(cfg.MinRefreshGap)
	}
	return &KeySet{
		discoveryURL: cfg.DiscoveryURL,
		client:       client,
		fetchTimeout: cfg.FetchTimeout,
		observe:      func(error) {},
		limiter:      rate.NewLimiter(limit, 1),
	}
}

// OnRefresh registers fn to be called with the outcome of every fetch.
func (ks *KeySet) OnRefresh(fn func(err error)) {
	ks.observe = fn
}

// Refresh fetches the discovery document and the key set it points to. On
// failure the previous keys stay in place. Concurrent callers share one fetch.
func (ks *KeySet) Refresh(ctx context.Context) error {
	return ks.refresh(ctx, false)
}

func (ks *KeySet) refresh(ctx context.Context, onlyIfEmpty bool) error {
	_, err, _ := ks.group.Do("refresh", func() (any, error) {
		if onlyIfEmpty && ks.current.Load() != nil {
			return nil, nil
		}
		set, err := ks.fetch(ctx)
		ks.observe(err)
		if err != nil {
			return nil, err
		}
		ks.current.Store(set)
		return nil, nil
	})
	return err
}

// Keyfunc resolves the verification key named by a token's kid.
func (ks *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid", ErrKeyNotFound)
		}
		set, err := ks.lookup(ctx, kid)
		if err != nil {
			return nil, err
		}
		return set.kf.Keyfunc(token)
	}
}

// Key returns the public key for kid.
func (ks *KeySet) Key(ctx context.Context, kid string) (any, error) {
	set, err := ks.lookup(ctx, kid)
	if err != nil {
		return nil, err
	}
	jwk, err := set.storage.KeyRead(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}
	return jwk.Key(), nil
}

// lookup returns a key set that contains kid. An empty cache or an unknown
// kid triggers a fetch, at most one per minimum refresh gap.
func (ks *KeySet) lookup(ctx context.Context, kid string) (*published, error) {
	set := ks.current.Load()
	if set == nil {
		if !ks.limiter.Allow() {
			return nil, ErrKeysUnavailable
		}
		if err := ks.refresh(ctx, true); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
		}
		set = ks.current.Load()
	}
	if set.has(kid) {
		return set, nil
	}

	if !ks.limiter.Allow() {
		return nil, ErrKeyNotFound
	}
	if err := ks.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}
	if set = ks.current.Load(); set.has(kid) {
		return set, nil
	}
	return nil, ErrKeyNotFound
}

func (ks *KeySet) fetch(ctx context.Context) (*published, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ks.fetchTimeout)
	defer cancel()

	var doc discoveryDocument
	raw, err := ks.get(ctx, ks.discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery document: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, errors.New("discovery document has no jwks_uri")
	}

	raw, err = ks.get(ctx, doc.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return decodeKeySet(raw)
}

func (ks *KeySet) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

// decodeKeySet keeps every signing key that decodes. A key that does not is
// logged and left out, so one bad entry cannot hide the others.
func decodeKeySet(raw []byte) (*published, error) {
	var set jwkset.JWKSMarshal
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	ctx := context.Background()
	storage := jwkset.NewMemoryStorage()
	kids := make(map[string]struct{}, len(set.Keys))
	for _, marshal := range set.Keys {
		if marshal.USE != "" && marshal.USE != "sig" {
			continue
		}
		jwk, err := jwkset.NewJWKFromMarshal(marshal, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
		if err != nil {
			log.Printf("skip signing key %q: %v", marshal.KID, err)
			continue
		}
		if err := storage.KeyWrite(ctx, jwk); err != nil {
			return nil, fmt.Errorf("store key %q: %w", marshal.KID, err)
		}
		kids[marshal.KID] = struct{}{}
	}
	if len(kids) == 0 {
		return nil, errors.New("jwks contains no usable signing keys")
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("build keyfunc: %w", err)
	}
	return &published{storage: storage, kf: kf, kids: kids}, nil
}
