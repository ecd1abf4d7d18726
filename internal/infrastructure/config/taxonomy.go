package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// DefaultTaxonomyYAML returns the embedded taxonomy document.
func DefaultTaxonomyYAML() []byte {
	return defaultTaxonomy
}

type taxonomyFile struct {
	Events []struct {
		Name     string   `yaml:"name"`
		Priority string   `yaml:"priority"`
		Handler  string   `yaml:"handler"`
		Senders  []string `yaml:"senders"`
	} `yaml:"events"`
	Aliases map[string]map[string]string `yaml:"aliases"`
}

// LoadTaxonomy reads the taxonomy document at path, or the embedded default
// when path is empty, and validates it against the handler IDs the
// dispatcher provides.
func LoadTaxonomy(path string, handlers []webhook.HandlerID) (*webhook.Taxonomy, *webhook.AliasRegistry, error) {
	data := defaultTaxonomy
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read taxonomy file: %w", err)
		}
		data = b
	}
	return ParseTaxonomy(data, handlers)
}

// ParseTaxonomy decodes and validates a taxonomy document.
func ParseTaxonomy(data []byte, handlers []webhook.HandlerID) (*webhook.Taxonomy, *webhook.AliasRegistry, error) {
	var doc taxonomyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	descriptors := make([]webhook.EventTypeDescriptor, 0, len(doc.Events))
	for _, e := range doc.Events {
		senders := make([]webhook.Sender, 0, len(e.Senders))
		for _, s := range e.Senders {
			senders = append(senders, webhook.Sender(s))
		}
		descriptors = append(descriptors, webhook.EventTypeDescriptor{
			Name:             webhook.EventType(e.Name),
			SupportedSenders: senders,
			Priority:         webhook.Priority(e.Priority),
			HandlerID:        webhook.HandlerID(e.Handler),
		})
	}

	tax, err := webhook.NewTaxonomy(descriptors, handlers)
	if err != nil {
		return nil, nil, err
	}

	tables := make([]*webhook.AliasTable, 0, len(doc.Aliases))
	for name, entries := range doc.Aliases {
		sender, err := webhook.ParseSender(name)
		if err != nil {
			return nil, nil, fmt.Errorf("taxonomy aliases: %w", err)
		}
		m := make(map[string]webhook.EventType, len(entries))
		for raw, canonical := range entries {
			m[raw] = webhook.EventType(canonical)
		}
		tables = append(tables, webhook.NewAliasTable(sender, m))
	}
	aliases := webhook.NewAliasRegistry(tables...)
	if err := aliases.ValidateAgainst(tax); err != nil {
		return nil, nil, fmt.Errorf("taxonomy aliases: %w", err)
	}

	return tax, aliases, nil
}
