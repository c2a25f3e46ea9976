package course

import (
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed templates.toml
var defaultTemplates []byte

type TemplateSet struct {
	Templates []Template `toml:"templates"`
}

type Template struct {
	ID          string          `toml:"id"`
	Brief       string          `toml:"brief"`
	Checks      []string        `toml:"checks"`
	Attachments []AttachmentGen `toml:"attachments"`
	Round2      []Variant       `toml:"round2"`
}

// Variant is a follow-up assignment within the same template family.
type Variant struct {
	Brief       string          `toml:"brief"`
	Checks      []string        `toml:"checks"`
	Attachments []AttachmentGen `toml:"attachments"`
}

type AttachmentGen struct {
	Name      string `toml:"name"`
	Generator string `toml:"generator"`
}

// Rendered is a template instantiated for one participant and round.
type Rendered struct {
	TemplateID  string
	Round       int
	Brief       string
	Checks      []string
	Attachments []Attachment
}

// TaskID is the template id followed by the first five hex digits of the
// sha256 of the brief and the attachments.
func (r Rendered) TaskID() string {
	return TaskID(r.TemplateID, r.Brief, r.Attachments)
}

func TaskID(templateID string, brief string, attachments []Attachment) string {
	h := sha256.New()
	h.Write([]byte(brief))
	for _, a := range attachments {
		h.Write([]byte(a.Name))
		h.Write([]byte(a.URL))
	}
	return templateID + "-" + hex.EncodeToString(h.Sum(nil))[:5]
}

// LoadTemplates reads a template set from path. An empty path selects the
// embedded default set.
func LoadTemplates(path string) (*TemplateSet, error) {
	raw := defaultTemplates
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read templates: %w", err)
		}
	}
	return ParseTemplates(raw)
}

func ParseTemplates(raw []byte) (*TemplateSet, error) {
	set := &TemplateSet{}
	if err := toml.Unmarshal(raw, set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal templates: %w", err)
	}
	if len(set.Templates) == 0 {
		return nil, fmt.Errorf("template set is empty")
	}
	seen := map[string]bool{}
	for _, t := range set.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template without id")
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		seen[t.ID] = true
		gens := t.Attachments
		for _, v := range t.Round2 {
			gens = append(gens, v.Attachments...)
		}
		for _, g := range gens {
			if _, ok := generators[g.Generator]; !ok {
				return nil, fmt.Errorf("template %q: unknown generator %q", t.ID, g.Generator)
			}
		}
	}
	return set, nil
}

func (s *TemplateSet) Get(id string) (Template, bool) {
	for _, t := range s.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Render picks a template deterministically from seed and instantiates it.
// Round 1 uses the template itself, later rounds one of its round2 variants.
func (s *TemplateSet) Render(seed string, round int) (Rendered, error) {
	rng := seededRand(seed)
	t := s.Templates[rng.IntN(len(s.Templates))]
	return t.render(rng, seed, round)
}

// RenderFrom instantiates the named template. Round 2 dispatch uses it to stay
// in the family chosen for round 1.
func (s *TemplateSet) RenderFrom(templateID string, seed string, round int) (Rendered, error) {
	t, ok := s.Get(templateID)
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template %q", templateID)
	}
	rng := seededRand(seed)
	return t.render(rng, seed, round)
}

func (t Template) render(rng *rand.Rand, seed string, round int) (Rendered, error) {
	brief, checks, gens := t.Brief, t.Checks, t.Attachments
	if round > 1 {
		if len(t.Round2) == 0 {
			return Rendered{}, fmt.Errorf("template %q has no round 2 variants", t.ID)
		}
		v := t.Round2[rng.IntN(len(t.Round2))]
		brief, checks, gens = v.Brief, v.Checks, v.Attachments
	}

	marker := strconv.FormatUint(seedHash(seed)%10000, 10)
	out := Rendered{
		TemplateID:  t.ID,
		Round:       round,
		Brief:       strings.ReplaceAll(brief, "{seed}", marker),
		Checks:      make([]string, 0, len(checks)),
		Attachments: []Attachment{},
	}
	for _, c := range checks {
		out.Checks = append(out.Checks, strings.ReplaceAll(c, "{seed}", marker))
	}
	for _, g := range gens {
		gen := generators[g.Generator]
		out.Attachments = append(out.Attachments, Attachment{
			Name: g.Name,
			URL:  gen(seededRand(seed + ":" + g.Name)),
		})
	}
	return out, nil
}

func seedHash(seed string) uint64 {
	sum := sha256.Sum256([]byte(seed))
	return binary.BigEndian.Uint64(sum[:8])
}

func seededRand(seed string) *rand.Rand {
	sum := sha256.Sum256([]byte(seed))
	return rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])))
}
