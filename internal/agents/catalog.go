package agents

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/tools"
)

// CatalogEntry is the public description of an agent.
type CatalogEntry struct {
	Type         domain.AgentType `json:"type"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Capabilities []string         `json:"capabilities"`
	Tools        []string         `json:"tools,omitempty"`
}

// Catalog answers agent listing and capability queries.
type Catalog struct {
	profiles Profiles
	registry *tools.Registry
}

// NewCatalog builds a catalog; registry supplies the tool names per agent.
func NewCatalog(p Profiles, reg *tools.Registry) *Catalog {
	return &Catalog{profiles: p, registry: reg}
}

// List returns every known agent in catalog order, without tool names.
func (c *Catalog) List() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.profiles.Agents))
	for _, t := range domain.AgentTypes() {
		p, ok := c.profiles.Get(t)
		if !ok {
			continue
		}
		e := entry(p)
		out = append(out, e)
	}
	return out
}

// Capabilities returns one agent's entry including its tool names.
// ok is false when the type has no profile.
func (c *Catalog) Capabilities(t domain.AgentType) (CatalogEntry, bool) {
	p, ok := c.profiles.Get(t)
	if !ok {
		return CatalogEntry{}, false
	}
	e := entry(p)
	e.Tools = []string{}
	if c.registry != nil {
		e.Tools = c.registry.Names(t)
	}
	return e, true
}

func entry(p Profile) CatalogEntry {
	caps := append([]string{}, p.Capabilities...)
	return CatalogEntry{
		Type:         p.Type,
		Name:         DisplayName(p.Type),
		Description:  p.Description,
		Capabilities: caps,
	}
}

// DisplayName renders an agent type for people, e.g. "Billing Agent".
func DisplayName(t domain.AgentType) string {
	return cases.Title(language.English).String(strings.ToLower(string(t))) + " Agent"
}
