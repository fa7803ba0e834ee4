package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlCatalog = `
tiers:
  - key: VIP
    label: "VIP access"
    price_usd: "30"
methods:
  - key: usdt
    label: USDT
    instructions: "{{.Tier.Label}} costs {{.Tier.PriceUSD}}$ to {{index .Wallets \"trc20\"}}"
wallets:
  trc20: TXYZ
`

const jsoncCatalog = `{
  // comments are allowed
  "referral_points": 7,
  "tiers": [{"key": "Sub1", "label": "Basic"}],
  "methods": [{"key": "sham", "label": "Sham", "instructions": "pay for {{.Tier.Label}}"}],
}`

func TestParseYAML(t *testing.T) {
	c, err := Parse("catalog.yaml", []byte(yamlCatalog))
	require.NoError(t, err)
	assert.Equal(t, defaultReferralPoints, c.ReferralPoints)

	text, err := c.Instructions("VIP", "usdt")
	require.NoError(t, err)
	assert.Equal(t, "VIP access costs 30$ to TXYZ", text)
}

func TestParseJSONC(t *testing.T) {
	c, err := Parse("catalog.jsonc", []byte(jsoncCatalog))
	require.NoError(t, err)
	assert.Equal(t, 7, c.ReferralPoints)

	tier, ok := c.Tier("Sub1")
	require.True(t, ok)
	assert.Equal(t, "Basic", tier.Label)
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"no tiers":           "methods: [{key: a}]",
		"no methods":         "tiers: [{key: a}]",
		"duplicate tier":     "tiers: [{key: a}, {key: a}]\nmethods: [{key: m}]",
		"bad template":       "tiers: [{key: a}]\nmethods: [{key: m, instructions: '{{.Tier'}]",
		"method without key": "tiers: [{key: a}]\nmethods: [{label: x}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("c.yaml", []byte(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse("catalog.toml", []byte(""))
	assert.ErrorContains(t, err, "unsupported catalog format")
}

func TestInstructionsMissingTierDegrades(t *testing.T) {
	c, err := Parse("catalog.yaml", []byte(yamlCatalog))
	require.NoError(t, err)

	text, err := c.Instructions("Gone", "usdt")
	assert.True(t, errors.Is(err, ErrConfigMissing))
	assert.Contains(t, text, genericTierLabel)

	label, err := c.TierLabel("Gone")
	assert.True(t, errors.Is(err, ErrConfigMissing))
	assert.Equal(t, genericTierLabel, label)

	_, err = c.Instructions("VIP", "paypal")
	assert.True(t, errors.Is(err, ErrConfigMissing))
}

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlCatalog), 0o600))

	store, err := Open(path)
	require.NoError(t, err)
	before := store.Current()

	updated := `
tiers:
  - key: VIP
    label: "VIP plus"
methods:
  - key: usdt
    instructions: "x"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := store.Current()
			label, _ := c.TierLabel("VIP")
			assert.Contains(t, []string{"VIP access", "VIP plus"}, label)
		}()
	}
	require.NoError(t, store.Reload())
	wg.Wait()

	label, err := store.Current().TierLabel("VIP")
	require.NoError(t, err)
	assert.Equal(t, "VIP plus", label)

	oldLabel, _ := before.TierLabel("VIP")
	assert.Equal(t, "VIP access", oldLabel)
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlCatalog), 0o600))
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tiers: []"), 0o600))
	assert.Error(t, store.Reload())

	_, ok := store.Current().Tier("VIP")
	assert.True(t, ok)
}

func TestShippedCatalogParses(t *testing.T) {
	store, err := Open(filepath.Join("..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	text, err := store.Current().Instructions("VIP", "usdt")
	require.NoError(t, err)
	assert.Contains(t, text, "VIP")
}
