// Package catalog holds the subscription offering read from the catalog file:
// tiers, payment methods, wallet addresses and support links. The current
// snapshot is immutable and replaced as a whole on reload.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrConfigMissing is returned when a selected tier or method is absent from
// the current catalog. Callers degrade to a generic label.
var ErrConfigMissing = errors.New("catalog entry missing")

const (
	defaultReferralPoints = 5
	genericTierLabel      = "Subscription"
)

type Tier struct {
	Key        string `yaml:"key" json:"key"`
	Label      string `yaml:"label" json:"label"`
	PriceUSD   string `yaml:"price_usd" json:"price_usd"`
	PriceLocal string `yaml:"price_local" json:"price_local"`
	Details    string `yaml:"details" json:"details"`
}

type Method struct {
	Key          string `yaml:"key" json:"key"`
	Label        string `yaml:"label" json:"label"`
	Instructions string `yaml:"instructions" json:"instructions"`
}

type Link struct {
	Label string `yaml:"label" json:"label"`
	URL   string `yaml:"url" json:"url"`
}

// Catalog is one parsed catalog file. Treat it as read-only once published.
type Catalog struct {
	ReferralPoints int               `yaml:"referral_points" json:"referral_points"`
	Tiers          []Tier            `yaml:"tiers" json:"tiers"`
	Methods        []Method          `yaml:"methods" json:"methods"`
	Wallets        map[string]string `yaml:"wallets" json:"wallets"`
	Support        []Link            `yaml:"support" json:"support"`
	Channels       []Link            `yaml:"channels" json:"channels"`

	templates map[string]*template.Template
}

// Tier returns the tier with the given key.
func (c *Catalog) Tier(key string) (Tier, bool) {
	for _, t := range c.Tiers {
		if t.Key == key {
			return t, true
		}
	}
	return Tier{}, false
}

// Method returns the payment method with the given key.
func (c *Catalog) Method(key string) (Method, bool) {
	for _, m := range c.Methods {
		if m.Key == key {
			return m, true
		}
	}
	return Method{}, false
}

// TierLabel returns the display label of a tier, falling back to a generic
// label together with ErrConfigMissing.
func (c *Catalog) TierLabel(key string) (string, error) {
	if t, ok := c.Tier(key); ok {
		return t.Label, nil
	}
	return genericTierLabel, fmt.Errorf("tier %q: %w", key, ErrConfigMissing)
}

type instructionData struct {
	Tier    Tier
	Method  Method
	Wallets map[string]string
	Support []Link
}

// Instructions renders the payment instructions for a tier/method pair. A
// missing tier still renders with a generic label; the returned error then
// wraps ErrConfigMissing.
func (c *Catalog) Instructions(tierKey, methodKey string) (string, error) {
	method, ok := c.Method(methodKey)
	if !ok {
		return "", fmt.Errorf("method %q: %w", methodKey, ErrConfigMissing)
	}
	var missing error
	tier, ok := c.Tier(tierKey)
	if !ok {
		tier = Tier{Key: tierKey, Label: genericTierLabel}
		missing = fmt.Errorf("tier %q: %w", tierKey, ErrConfigMissing)
	}

	tmpl := c.templates[method.Key]
	if tmpl == nil {
		return method.Instructions, missing
	}
	var buf bytes.Buffer
	data := instructionData{Tier: tier, Method: method, Wallets: c.Wallets, Support: c.Support}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instructions for %s: %w", method.Key, err)
	}
	return buf.String(), missing
}

// Parse decodes a catalog document. The format follows the file extension:
// .yaml/.yml or .json/.jsonc (comments allowed).
func Parse(name string, data []byte) (*Catalog, error) {
	var c Catalog
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &c); err != nil {
			return nil, fmt.Errorf("parse json catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(name))
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) prepare() error {
	if c.ReferralPoints <= 0 {
		c.ReferralPoints = defaultReferralPoints
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("catalog has no tiers")
	}
	if len(c.Methods) == 0 {
		return fmt.Errorf("catalog has no payment methods")
	}
	seen := make(map[string]struct{})
	for _, t := range c.Tiers {
		if strings.TrimSpace(t.Key) == "" {
			return fmt.Errorf("tier without key")
		}
		if _, dup := seen["tier:"+t.Key]; dup {
			return fmt.Errorf("duplicate tier %q", t.Key)
		}
		seen["tier:"+t.Key] = struct{}{}
	}
	c.templates = make(map[string]*template.Template, len(c.Methods))
	for _, m := range c.Methods {
		if strings.TrimSpace(m.Key) == "" {
			return fmt.Errorf("method without key")
		}
		if _, dup := seen["method:"+m.Key]; dup {
			return fmt.Errorf("duplicate method %q", m.Key)
		}
		seen["method:"+m.Key] = struct{}{}
		tmpl, err := template.New(m.Key).Option("missingkey=zero").Parse(m.Instructions)
		if err != nil {
			return fmt.Errorf("method %s instructions: %w", m.Key, err)
		}
		c.templates[m.Key] = tmpl
	}
	if c.Wallets == nil {
		c.Wallets = map[string]string{}
	}
	return nil
}

// Store publishes the current catalog snapshot. Readers never see a partially
// updated catalog: Reload swaps the pointer only after a full parse.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
}

// Open reads the catalog file and returns a store serving it.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStatic serves a fixed catalog. Reload is a no-op error.
func NewStatic(c *Catalog) (*Store, error) {
	if err := c.prepare(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(c)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Reload re-reads the catalog file. On error the previous snapshot stays.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("catalog has no backing file")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", s.path, err)
	}
	c, err := Parse(s.path, data)
	if err != nil {
		return err
	}
	s.current.Store(c)
	return nil
}
