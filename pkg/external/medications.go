package external

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cvrisk-engine/internal/domain"
)

const lookupCacheSize = 512

// BuiltinMedicationDB is the in-process medication taxonomy. Lookups are
// case-insensitive substring matches in both directions, so "atorvastatin
// 40mg" and "atorva" both resolve; results are memoized in an LRU cache
// because free-text medication lists repeat heavily across requests.
type BuiltinMedicationDB struct {
	entries []domain.MedicationEntry
	cache   *lru.Cache[string, lookupResult]
}

type lookupResult struct {
	entry domain.MedicationEntry
	ok    bool
}

// NewBuiltinMedicationDB creates the builtin taxonomy.
func NewBuiltinMedicationDB() *BuiltinMedicationDB {
	cache, _ := lru.New[string, lookupResult](lookupCacheSize)
	return &BuiltinMedicationDB{
		entries: builtinTaxonomy(),
		cache:   cache,
	}
}

// Lookup implements domain.MedicationDatabase.
func (db *BuiltinMedicationDB) Lookup(name string) (domain.MedicationEntry, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return domain.MedicationEntry{}, false
	}

	if cached, ok := db.cache.Get(normalized); ok {
		return cached.entry, cached.ok
	}

	entry, ok := db.match(normalized)
	db.cache.Add(normalized, lookupResult{entry: entry, ok: ok})
	return entry, ok
}

func (db *BuiltinMedicationDB) match(normalized string) (domain.MedicationEntry, bool) {
	for _, entry := range db.entries {
		canonical := strings.ToLower(entry.Name)
		if strings.Contains(normalized, canonical) || strings.Contains(canonical, normalized) {
			return entry, true
		}
	}
	return domain.MedicationEntry{}, false
}

// AddEntries appends custom taxonomy rows (formulary extensions) and drops
// memoized lookups so the new rows become matchable.
func (db *BuiltinMedicationDB) AddEntries(entries ...domain.MedicationEntry) {
	db.entries = append(db.entries, entries...)
	db.cache.Purge()
}

// Entries implements domain.MedicationDatabase.
func (db *BuiltinMedicationDB) Entries() []domain.MedicationEntry {
	out := make([]domain.MedicationEntry, len(db.entries))
	copy(out, db.entries)
	return out
}

// builtinTaxonomy returns the canonical drug rows. Statin tiers follow
// name-level intensity classification; non-statin factors are
// remaining-fraction multipliers for the LDL effect model.
func builtinTaxonomy() []domain.MedicationEntry {
	return []domain.MedicationEntry{
		// Statins
		{Name: "atorvastatin", Class: domain.ClassStatin, Tier: domain.StatinHigh},
		{Name: "rosuvastatin", Class: domain.ClassStatin, Tier: domain.StatinHigh},
		{Name: "simvastatin", Class: domain.ClassStatin, Tier: domain.StatinModerate},
		{Name: "pitavastatin", Class: domain.ClassStatin, Tier: domain.StatinModerate},
		{Name: "pravastatin", Class: domain.ClassStatin, Tier: domain.StatinLow},
		{Name: "fluvastatin", Class: domain.ClassStatin, Tier: domain.StatinLow},
		{Name: "lovastatin", Class: domain.ClassStatin, Tier: domain.StatinLow},

		// Cholesterol absorption inhibitor
		{Name: "ezetimibe", Class: domain.ClassEzetimibe, Factor: 0.76},

		// PCSK9-class agents, brand names included
		{Name: "evolocumab", Class: domain.ClassPCSK9, Factor: 0.40},
		{Name: "alirocumab", Class: domain.ClassPCSK9, Factor: 0.40},
		{Name: "repatha", Class: domain.ClassPCSK9, Factor: 0.40},
		{Name: "praluent", Class: domain.ClassPCSK9, Factor: 0.40},
		{Name: "inclisiran", Class: domain.ClassPCSK9, Factor: 0.40},

		// Bile acid sequestrants
		{Name: "cholestyramine", Class: domain.ClassSequestrant, Factor: 0.82},
		{Name: "colesevelam", Class: domain.ClassSequestrant, Factor: 0.82},
		{Name: "colestipol", Class: domain.ClassSequestrant, Factor: 0.82},

		// Fibrates
		{Name: "fenofibrate", Class: domain.ClassFibrate, Factor: 0.93},
		{Name: "gemfibrozil", Class: domain.ClassFibrate, Factor: 0.93},

		// Others
		{Name: "niacin", Class: domain.ClassNiacin, Factor: 0.83},
		{Name: "bempedoic acid", Class: domain.ClassBempedoic, Factor: 0.82},
		{Name: "icosapent ethyl", Class: domain.ClassIcosapent, Factor: 1.00},
	}
}
