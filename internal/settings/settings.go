package settings

import (
	"encoding/json"
	"math"
	"strconv"
	"sync"
)

// Defaults for every runtime tunable. These mirror the service defaults and
// are the values a fresh deployment starts with.
const (
	DefaultHistoryWindow          = 10
	DefaultHistoryStoreLimit      = 40
	DefaultNotesLimit             = 10
	DefaultHistoryRetentionDays   = 45
	DefaultSummaryChunkSize       = 20
	DefaultSummaryLimit           = 24
	DefaultSummaryContextWindow   = 4
	DefaultMaxMessageChars        = 1200
	DefaultMemoryQualityThreshold = 0.55
	DefaultMemoryMinLength        = 10
	DefaultMemoryMaxLength        = 180
	DefaultMemoryDecayDays        = 30
	DefaultMemoryForgetThreshold  = 0.35
)

// Values is a plain snapshot of the effective settings.
type Values struct {
	HistoryWindow          int     `json:"historyWindow"`
	HistoryStoreLimit      int     `json:"historyStoreLimit"`
	NotesLimit             int     `json:"notesLimit"`
	HistoryRetentionDays   int     `json:"historyRetentionDays"`
	SummaryChunkSize       int     `json:"summaryChunkSize"`
	SummaryLimit           int     `json:"summaryLimit"`
	SummaryContextWindow   int     `json:"summaryContextWindow"`
	MaxMessageChars        int     `json:"maxMessageChars"`
	MemoryQualityThreshold float64 `json:"memoryQualityThreshold"`
	MemoryMinLength        int     `json:"memoryMinLength"`
	MemoryMaxLength        int     `json:"memoryMaxLength"`
	MemoryDecayDays        int     `json:"memoryDecayDays"`
	MemoryForgetThreshold  float64 `json:"memoryForgetThreshold"`
}

// Settings is the single shared runtime-tunable configuration object. Every
// component that needs a bound holds the same *Settings and reads it live, so
// an update is visible everywhere at once.
type Settings struct {
	mu sync.RWMutex
	v  Values
}

type spec struct {
	min float64
	max float64 // NaN means unbounded above
	get func(*Values) float64
	set func(*Values, float64)
}

var specs = map[string]spec{
	"historyWindow": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.HistoryWindow) },
		set: func(v *Values, f float64) { v.HistoryWindow = int(f) }},
	"historyStoreLimit": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.HistoryStoreLimit) },
		set: func(v *Values, f float64) { v.HistoryStoreLimit = int(f) }},
	"notesLimit": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.NotesLimit) },
		set: func(v *Values, f float64) { v.NotesLimit = int(f) }},
	"historyRetentionDays": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.HistoryRetentionDays) },
		set: func(v *Values, f float64) { v.HistoryRetentionDays = int(f) }},
	"summaryChunkSize": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.SummaryChunkSize) },
		set: func(v *Values, f float64) { v.SummaryChunkSize = int(f) }},
	"summaryLimit": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.SummaryLimit) },
		set: func(v *Values, f float64) { v.SummaryLimit = int(f) }},
	"summaryContextWindow": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.SummaryContextWindow) },
		set: func(v *Values, f float64) { v.SummaryContextWindow = int(f) }},
	"maxMessageChars": {min: 50, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.MaxMessageChars) },
		set: func(v *Values, f float64) { v.MaxMessageChars = int(f) }},
	"memoryQualityThreshold": {min: 0, max: 1,
		get: func(v *Values) float64 { return v.MemoryQualityThreshold },
		set: func(v *Values, f float64) { v.MemoryQualityThreshold = f }},
	"memoryMinLength": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.MemoryMinLength) },
		set: func(v *Values, f float64) { v.MemoryMinLength = int(f) }},
	"memoryMaxLength": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.MemoryMaxLength) },
		set: func(v *Values, f float64) { v.MemoryMaxLength = int(f) }},
	"memoryDecayDays": {min: 1, max: math.NaN(),
		get: func(v *Values) float64 { return float64(v.MemoryDecayDays) },
		set: func(v *Values, f float64) { v.MemoryDecayDays = int(f) }},
	"memoryForgetThreshold": {min: 0, max: 1,
		get: func(v *Values) float64 { return v.MemoryForgetThreshold },
		set: func(v *Values, f float64) { v.MemoryForgetThreshold = f }},
}

func Defaults() Values {
	return Values{
		HistoryWindow:          DefaultHistoryWindow,
		HistoryStoreLimit:      DefaultHistoryStoreLimit,
		NotesLimit:             DefaultNotesLimit,
		HistoryRetentionDays:   DefaultHistoryRetentionDays,
		SummaryChunkSize:       DefaultSummaryChunkSize,
		SummaryLimit:           DefaultSummaryLimit,
		SummaryContextWindow:   DefaultSummaryContextWindow,
		MaxMessageChars:        DefaultMaxMessageChars,
		MemoryQualityThreshold: DefaultMemoryQualityThreshold,
		MemoryMinLength:        DefaultMemoryMinLength,
		MemoryMaxLength:        DefaultMemoryMaxLength,
		MemoryDecayDays:        DefaultMemoryDecayDays,
		MemoryForgetThreshold:  DefaultMemoryForgetThreshold,
	}
}

func New() *Settings {
	return &Settings{v: Defaults()}
}

// NewWith starts from the given snapshot, clamping each field into its
// declared range.
func NewWith(v Values) *Settings {
	s := &Settings{v: Defaults()}
	for key, sp := range specs {
		s.apply(key, sp.get(&v))
	}
	return s
}

// Snapshot returns a copy of the current effective values.
func (s *Settings) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Update applies the given raw updates. Each value is coerced to a number and
// clamped into the tunable's [min,max]; anything that does not parse keeps the
// previous value. Unknown keys are ignored. Returns the applied subset and the
// resulting snapshot.
func (s *Settings) Update(updates map[string]any) (applied map[string]float64, effective Values) {
	applied = make(map[string]float64)
	for key, raw := range updates {
		if raw == nil {
			continue
		}
		if _, ok := specs[key]; !ok {
			continue
		}
		num, ok := toNumber(raw)
		if !ok {
			continue
		}
		applied[key] = s.apply(key, num)
	}
	return applied, s.Snapshot()
}

func (s *Settings) apply(key string, num float64) float64 {
	sp := specs[key]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isFinite(num) {
		return sp.get(&s.v)
	}
	bounded := math.Max(sp.min, num)
	if !math.IsNaN(sp.max) {
		bounded = math.Min(sp.max, bounded)
	}
	sp.set(&s.v, bounded)
	return bounded
}

func toNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// HistoryWindow and friends are the live accessors components use.

func (s *Settings) HistoryWindow() int {
	return s.intField(func(v *Values) int { return v.HistoryWindow })
}
func (s *Settings) HistoryStoreLimit() int {
	return s.intField(func(v *Values) int { return v.HistoryStoreLimit })
}
func (s *Settings) NotesLimit() int { return s.intField(func(v *Values) int { return v.NotesLimit }) }
func (s *Settings) HistoryRetentionDays() int {
	return s.intField(func(v *Values) int { return v.HistoryRetentionDays })
}
func (s *Settings) SummaryChunkSize() int {
	return s.intField(func(v *Values) int { return v.SummaryChunkSize })
}
func (s *Settings) SummaryLimit() int {
	return s.intField(func(v *Values) int { return v.SummaryLimit })
}
func (s *Settings) SummaryContextWindow() int {
	return s.intField(func(v *Values) int { return v.SummaryContextWindow })
}
func (s *Settings) MaxMessageChars() int {
	return s.intField(func(v *Values) int { return v.MaxMessageChars })
}
func (s *Settings) MemoryQualityThreshold() float64 {
	return s.floatField(func(v *Values) float64 { return v.MemoryQualityThreshold })
}
func (s *Settings) MemoryMinLength() int {
	return s.intField(func(v *Values) int { return v.MemoryMinLength })
}
func (s *Settings) MemoryMaxLength() int {
	return s.intField(func(v *Values) int { return v.MemoryMaxLength })
}
func (s *Settings) MemoryDecayDays() int {
	return s.intField(func(v *Values) int { return v.MemoryDecayDays })
}
func (s *Settings) MemoryForgetThreshold() float64 {
	return s.floatField(func(v *Values) float64 { return v.MemoryForgetThreshold })
}

func (s *Settings) intField(get func(*Values) int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(&s.v)
}

func (s *Settings) floatField(get func(*Values) float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(&s.v)
}
