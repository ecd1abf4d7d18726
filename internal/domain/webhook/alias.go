package webhook

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AliasTable maps the literal event names one sender uses onto canonical
// event types. A name without an alias passes through unchanged so senders
// that already speak the canonical vocabulary need no entries.
//
// Several senders carry more than one spelling for the same event (upper
// snake and camel case side by side). All of them are kept; accepted events
// record the literal name so the spellings actually in use can be audited
// before any are retired.
type AliasTable struct {
	sender  Sender
	aliases map[string]EventType
}

// NewAliasTable copies aliases into a new table for sender.
func NewAliasTable(sender Sender, aliases map[string]EventType) *AliasTable {
	t := &AliasTable{sender: sender, aliases: make(map[string]EventType, len(aliases))}
	for raw, canonical := range aliases {
		t.aliases[strings.TrimSpace(raw)] = canonical
	}
	return t
}

// Sender returns the sender this table belongs to.
func (t *AliasTable) Sender() Sender {
	return t.sender
}

// Resolve maps a literal event name to its canonical type. aliased is true
// when an explicit alias matched.
func (t *AliasTable) Resolve(raw string) (eventType EventType, aliased bool) {
	name := strings.TrimSpace(raw)
	if t != nil {
		if canonical, ok := t.aliases[name]; ok {
			return canonical, true
		}
	}
	return EventType(name), false
}

// Names returns every literal name in the table, sorted.
func (t *AliasTable) Names() []string {
	out := make([]string, 0, len(t.aliases))
	for raw := range t.aliases {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of aliases.
func (t *AliasTable) Len() int {
	return len(t.aliases)
}

// ValidateAgainst checks that every alias lands on an event type the
// taxonomy accepts from this sender.
func (t *AliasTable) ValidateAgainst(tax *Taxonomy) error {
	var errs []error
	for _, raw := range t.Names() {
		canonical := t.aliases[raw]
		if _, err := tax.Lookup(canonical, t.sender); err != nil {
			errs = append(errs, fmt.Errorf("alias %s/%q: %w", t.sender, raw, err))
		}
	}
	return errors.Join(errs...)
}

// AliasRegistry holds one AliasTable per sender.
type AliasRegistry struct {
	tables map[Sender]*AliasTable
}

// NewAliasRegistry indexes tables by sender. A later table for the same
// sender replaces an earlier one.
func NewAliasRegistry(tables ...*AliasTable) *AliasRegistry {
	r := &AliasRegistry{tables: make(map[Sender]*AliasTable, len(tables))}
	for _, t := range tables {
		r.tables[t.sender] = t
	}
	return r
}

// For returns the table for sender, or an empty table.
func (r *AliasRegistry) For(sender Sender) *AliasTable {
	if t, ok := r.tables[sender]; ok {
		return t
	}
	return NewAliasTable(sender, nil)
}

// ValidateAgainst validates every table.
func (r *AliasRegistry) ValidateAgainst(tax *Taxonomy) error {
	senders := make([]string, 0, len(r.tables))
	for s := range r.tables {
		senders = append(senders, string(s))
	}
	sort.Strings(senders)

	var errs []error
	for _, s := range senders {
		if err := r.tables[Sender(s)].ValidateAgainst(tax); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
