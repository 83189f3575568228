package gate

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySet_RefreshesOnUnknownKid(t *testing.T) {
	a := newAuthority(t, "k1")
	g, _ := newGate(t, a)
	ctx := context.Background()

	require.True(t, g.Authorize(ctx, "Bearer "+sign(t, a.key("k1"), "k1", validClaims())))

	rotated := a.addKey("k2")
	assert.True(t, g.Authorize(ctx, "Bearer "+sign(t, rotated, "k2", validClaims())))
	assert.EqualValues(t, 2, a.jwksCalls.Load())
}

func TestKeySet_UnknownKidRefreshIsRateLimited(t *testing.T) {
	a := newAuthority(t, "k1")
	cfg := testConfig(a)
	cfg.MinRefreshGap = time.Hour
	ks := NewKeySet(cfg, a.srv.Client())
	ctx := context.Background()

	_, err := ks.Key(ctx, "k1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = ks.Key(ctx, "nope")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.EqualValues(t, 1, a.jwksCalls.Load())
}

func TestKeySet_FailedRefreshKeepsPreviousKeys(t *testing.T) {
	a := newAuthority(t, "k1")
	ks := NewKeySet(testConfig(a), a.srv.Client())
	ctx := context.Background()
	require.NoError(t, ks.Refresh(ctx))

	a.failing.Store(true)
	assert.Error(t, ks.Refresh(ctx))

	key, err := ks.Key(ctx, "k1")
	require.NoError(t, err)
	pub, ok := key.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Zero(t, a.key("k1").N.Cmp(pub.N))
}

func TestKeySet_ConcurrentLookupsShareOneFetch(t *testing.T) {
	a := newAuthority(t, "k1")
	a.delay = 100 * time.Millisecond
	ks := NewKeySet(testConfig(a), a.srv.Client())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ks.Key(context.Background(), "k1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, a.jwksCalls.Load())
}

func TestKeySet_ObservesRefreshOutcome(t *testing.T) {
	a := newAuthority(t, "k1")
	ks := NewKeySet(testConfig(a), a.srv.Client())
	var outcomes []error
	ks.OnRefresh(func(err error) { outcomes = append(outcomes, err) })

	require.NoError(t, ks.Refresh(context.Background()))
	a.failing.Store(true)
	require.Error(t, ks.Refresh(context.Background()))

	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0])
	assert.Error(t, outcomes[1])
}

func TestKeySet_NoKeysAfterFailedFirstFetch(t *testing.T) {
	a := newAuthority(t, "k1")
	a.failing.Store(true)
	cfg := testConfig(a)
	cfg.MinRefreshGap = time.Hour
	ks := NewKeySet(cfg, a.srv.Client())

	_, err := ks.Key(context.Background(), "k1")
	assert.True(t, errors.Is(err, ErrKeysUnavailable))

	// Within the gap no new fetch is attempted.
	a.failing.Store(false)
	_, err = ks.Key(context.Background(), "k1")
	assert.ErrorIs(t, err, ErrKeysUnavailable)
	assert.EqualValues(t, 0, a.jwksCalls.Load())
}

func TestKeySet_SkipsUndecodableKeys(t *testing.T) {
	a := newAuthority(t, "good")
	a.publishRaw(testJWK{Kid: "broken", Kty: "RSA", Use: "sig", N: "!!", E: "!!"})
	ks := NewKeySet(testConfig(a), a.srv.Client())
	ctx := context.Background()

	require.NoError(t, ks.Refresh(ctx))

	_, err := ks.Key(ctx, "good")
	assert.NoError(t, err)
	_, err = ks.Key(ctx, "broken")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDecodeKeySet(t *testing.T) {
	good := newKey(t)
	goodJWK := testJWK{
		Kid: "good",
		Kty: "RSA",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(good.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(good.E)).Bytes()),
	}
	encKey := goodJWK
	encKey.Kid, encKey.Use = "enc", "enc"
	broken := testJWK{Kid: "broken", Kty: "RSA", Use: "sig", N: "!!", E: "!!"}

	tests := []struct {
		name    string
		keys    []testJWK
		want    []string
		wantErr bool
	}{
		{name: "good only", keys: []testJWK{goodJWK}, want: []string{"good"}},
		{name: "bad entry skipped", keys: []testJWK{broken, goodJWK}, want: []string{"good"}},
		{name: "encryption key ignored", keys: []testJWK{encKey, goodJWK}, want: []string{"good"}},
		{name: "nothing usable", keys: []testJWK{broken, encKey}, wantErr: true},
		{name: "empty", keys: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(map[string][]testJWK{"keys": tt.keys})
			require.NoError(t, err)

			set, err := decodeKeySet(raw)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, kid := range tt.want {
				assert.True(t, set.has(kid), kid)
			}
			assert.Len(t, set.kids, len(tt.want))
		})
	}
}

func TestDecodeKeySet_NotJSON(t *testing.T) {
	_, err := decodeKeySet([]byte("<html>"))
	assert.Error(t, err)
}
