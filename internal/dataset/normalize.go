package dataset

import (
	"fmt"
	"strings"

	"oncostats/pkg/models"
)

// Alias maps one legacy column spelling onto its canonical name.
type Alias struct {
	From string
	To   string
}

// ColumnAliases is the fixed alias table. Order matters only for how aliases
// are reported in an AmbiguousColumnAliasError.
var ColumnAliases = []Alias{
	{From: "Survival_R", To: "Survival_Rate"},
	{From: "Death_Rat", To: "Death_Rate"},
	{From: "Cure%", To: "%Cure"},
	{From: "Cure_Rate", To: "%Cure"},
}

// AmbiguousColumnAliasError means a table spells the same metric more than
// one legacy way and carries no canonical column to settle it.
type AmbiguousColumnAliasError struct {
	Target  string
	Aliases []string
}

func (e *AmbiguousColumnAliasError) Error() string {
	return fmt.Sprintf("ambiguous column alias for %q: found %s", e.Target, strings.Join(e.Aliases, ", "))
}

// Normalize renames legacy columns to their canonical names, in place.
//
// Each canonical target is handled on its own: if the canonical column is
// already present it is kept and any alias columns are left untouched; if
// exactly one alias is present it is renamed; if several are present the call
// fails and t is left unchanged. Matching is exact and case-sensitive. Rows
// are never touched.
func Normalize(t *models.Table) error {
	return NormalizeWith(t, ColumnAliases)
}

// NormalizeWith is Normalize over a caller-supplied alias table.
func NormalizeWith(t *models.Table, aliases []Alias) error {
	var targets []string
	byTarget := make(map[string][]string)
	for _, a := range aliases {
		if _, ok := byTarget[a.To]; !ok {
			targets = append(targets, a.To)
		}
		byTarget[a.To] = append(byTarget[a.To], a.From)
	}

	renames := make(map[int]string)
	for _, target := range targets {
		if t.Has(target) {
			continue
		}
		var found []string
		idx := -1
		for _, from := range byTarget[target] {
			if i := t.Index(from); i >= 0 {
				found = append(found, from)
				idx = i
			}
		}
		switch len(found) {
		case 0:
		case 1:
			renames[idx] = target
		default:
			return &AmbiguousColumnAliasError{Target: target, Aliases: found}
		}
	}

	for i, name := range renames {
		t.Columns[i] = name
	}
	return nil
}
