package pii

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// PseudonymStore externalizes the fingerprint->token mapping so it survives
// process restarts and is shared across replicas (Design Note §9). A
// *cache.Client satisfies this structurally via its PutPseudonym/
// GetPseudonym methods; tests can supply an in-memory fake.
type PseudonymStore interface {
	GetPseudonym(ctx context.Context, tenant, fingerprint string) (string, bool, error)
	PutPseudonym(ctx context.Context, tenant, fingerprint, pseudonym string) error
}

// Mode selects the transform process() applies to each detected match.
type Mode string

const (
	ModeRedact       Mode = "redact"
	ModePseudonymize Mode = "pseudonymize"
	ModeMask         Mode = "mask"
)

// Detector finds and transforms PII in text. It is safe for concurrent use;
// the pseudonym map is per-Detector (per-process, per §5's shared-resource
// policy) and guarded by a mutex.
type Detector struct {
	mu       sync.Mutex
	patterns []Pattern
	ner      NERProvider

	// pseudonyms maps a stable key (entity type + hash of original value)
	// to the token assigned the first time that value was seen, giving
	// process(text, pseudonymize) session-stable determinism. It also acts
	// as a local cache in front of store, so repeated lookups within one
	// job don't round-trip to Redis.
	pseudonyms map[string]string
	counters   map[EntityType]int

	store  PseudonymStore
	tenant string
}

// New builds a Detector with the built-in pattern catalog plus any custom
// patterns and an optional NER augmentation layer.
func New(opts ...Option) *Detector {
	d := &Detector{
		patterns:   builtinPatterns(),
		pseudonyms: make(map[string]string),
		counters:   make(map[EntityType]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Option configures a Detector at construction time.
type Option func(*Detector)

// WithNER attaches an optional NER augmentation provider.
func WithNER(p NERProvider) Option { return func(d *Detector) { d.ner = p } }

// WithCustomPattern registers a runtime custom pattern, per §4.3's
// "(name, regex, category)" extension point. name is not used; the
// category becomes the EntityType recorded on matches.
func WithCustomPattern(name string, p Pattern) Option {
	_ = name
	return func(d *Detector) { d.patterns = append(d.patterns, p) }
}

// WithExternalStore backs pseudonym assignment with store, scoped to
// tenant, so the same PII value maps to the same token across every
// Detector instance (any process, any replica) processing that tenant's
// data. Without this option pseudonym state lives only in this Detector's
// lifetime, matching §5's default per-process policy.
func WithExternalStore(tenant string, store PseudonymStore) Option {
	return func(d *Detector) {
		d.store = store
		d.tenant = tenant
	}
}

// Detect returns every match found in text without mutating it.
func (d *Detector) Detect(text string) ([]Detection, error) {
	var out []Detection
	for _, p := range d.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			out = append(out, Detection{
				Type:       p.Type,
				Start:      loc[0],
				End:        loc[1],
				Confidence: p.Confidence,
				Span:       text[loc[0]:loc[1]],
			})
		}
	}
	if d.ner != nil {
		extra, err := d.ner.Detect(text)
		if err != nil {
			return nil, fmt.Errorf("pii: ner detection: %w", err)
		}
		out = append(out, extra...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return dedupeOverlaps(out), nil
}

// dedupeOverlaps keeps one match out of any two whose spans overlap: the
// one with higher confidence, or the earlier one in position order on a
// tie (e.g. a more specific UUID match wins over a generic API_KEY match).
func dedupeOverlaps(matches []Detection) []Detection {
	var out []Detection
	for _, m := range matches {
		overlaps := false
		for i := range out {
			if m.Start < out[i].End && out[i].Start < m.End {
				if m.Confidence <= out[i].Confidence {
					overlaps = true
					break
				}
				// New match is stronger; replace the weaker one.
				out[i] = m
				overlaps = true
				break
			}
		}
		if !overlaps {
			out = append(out, m)
		}
	}
	return out
}

// Process applies mode to every detected entity in text and returns the
// transformed result. Idempotent for redact and mask; pseudonymize is
// deterministic within the Detector's lifetime (one ingestion session).
func (d *Detector) Process(text string, mode Mode) (string, error) {
	return d.ProcessContext(context.Background(), text, mode)
}

// ProcessContext is Process with a context threaded through to the
// external pseudonym store, when one is configured via WithExternalStore.
func (d *Detector) ProcessContext(ctx context.Context, text string, mode Mode) (string, error) {
	matches, err := d.Detect(text)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return text, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var b []byte
	last := 0
	for _, m := range matches {
		b = append(b, text[last:m.Start]...)
		transformed, err := d.transform(ctx, m, mode)
		if err != nil {
			return "", err
		}
		b = append(b, transformed...)
		last = m.End
	}
	b = append(b, text[last:]...)
	return string(b), nil
}

func (d *Detector) transform(ctx context.Context, m Detection, mode Mode) (string, error) {
	switch mode {
	case ModeRedact:
		return fmt.Sprintf("[%s_REDACTED]", m.Type), nil
	case ModeMask:
		return maskMiddle(m.Span), nil
	case ModePseudonymize:
		return d.pseudonymize(ctx, m)
	default:
		return fmt.Sprintf("[%s_REDACTED]", m.Type), nil
	}
}

// maskMiddle keeps the first two and last two characters, masking the rest,
// per §4.3's mask mode.
func maskMiddle(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return stringsRepeat("*", len(r))
	}
	middle := stringsRepeat("*", len(r)-4)
	return string(r[:2]) + middle + string(r[len(r)-2:])
}

func stringsRepeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// pseudonymize assigns (or reuses) a stable TYPE_NNNN token for the
// original value, without holding the original value itself in the map —
// only an unsalted SHA-256 fingerprint of its type and value. When an external store is
// configured, the local map is checked first, then the store; a
// store-side hit is copied into the local map, and a local assignment is
// written through to the store so other replicas converge on it too.
func (d *Detector) pseudonymize(ctx context.Context, m Detection) (string, error) {
	key := fingerprint(m.Type, m.Span)
	if tok, ok := d.pseudonyms[key]; ok {
		return tok, nil
	}

	if d.store != nil {
		tok, ok, err := d.store.GetPseudonym(ctx, d.tenant, key)
		if err != nil {
			return "", fmt.Errorf("pii: external pseudonym lookup: %w", err)
		}
		if ok {
			d.pseudonyms[key] = tok
			return tok, nil
		}
	}

	d.counters[m.Type]++
	tok := fmt.Sprintf("%s_%04d", m.Type, d.counters[m.Type])
	d.pseudonyms[key] = tok

	if d.store != nil {
		if err := d.store.PutPseudonym(ctx, d.tenant, key, tok); err != nil {
			return "", fmt.Errorf("pii: external pseudonym write: %w", err)
		}
	}
	return tok, nil
}

func fingerprint(t EntityType, value string) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + value))
	return string(t) + ":" + hex.EncodeToString(sum[:])
}

// ClearPseudonymMappings discards all pseudonym state, starting a fresh
// session (distinct mappings going forward; same structure as before).
func (d *Detector) ClearPseudonymMappings() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pseudonyms = make(map[string]string)
	d.counters = make(map[EntityType]int)
}

// GetPseudonymMappings returns a defensive copy of the current value→token
// map, keyed by the same fingerprint used internally (callers cannot
// recover original values from it, only observe that a mapping exists).
func (d *Detector) GetPseudonymMappings() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.pseudonyms))
	for k, v := range d.pseudonyms {
		out[k] = v
	}
	return out
}
