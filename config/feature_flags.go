package config

import (
	"hash/fnv"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// Флаги функций. AI-функции можно включить сначала для одной секции или
// части класса.
const (
	FeatureAIAnalysis       = "ai.analysis"
	FeatureAIChat           = "ai.chat"
	FeatureAIVoice          = "ai.voice"
	FeatureReportCountdown  = "report.countdown"
	FeatureConsistencyCheck = "report.consistency_check"
)

var (
	ErrFeatureNotFound       = shared.NewDomainError("config", "Feature", shared.ErrNotFound, "unknown feature")
	ErrInvalidRolloutPercent = shared.NewDomainError("config", "Feature", shared.ErrValueOutOfRange, "rollout percent must be within 0..100")
)

// Feature is one toggle. Rollout 0 means off and 100 means everyone; in
// between, students are bucketed by a hash of (feature, student ID).
type Feature struct {
	Name     string   `json:"name"`
	Rollout  int      `json:"rollout"`
	Sections []string `json:"sections,omitempty"` // empty: all sections
}

// FeatureContext describes who is asking. A nil context skips targeting and
// bucketing.
type FeatureContext struct {
	StudentID string
	Section   string
}

// FeatureFlags is safe for concurrent use.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	overrides map[string]bool // studentID + "\x00" + feature
}

// LoadFeatureFlags enables every known feature and applies environment
// overrides:
//
//	FEATURE_AI_VOICE=false        off
//	FEATURE_AI_CHAT=30            30% of students
//	FEATURE_AI_CHAT_SECTIONS=B    only section B
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature),
		overrides: make(map[string]bool),
	}
	for _, name := range []string{
		FeatureAIAnalysis, FeatureAIChat, FeatureAIVoice,
		FeatureReportCountdown, FeatureConsistencyCheck,
	} {
		f := &Feature{Name: name, Rollout: 100}
		applyEnv(f, os.Getenv)
		ff.features[name] = f
	}
	return ff
}

func envKey(feature string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(feature, ".", "_"))
}

func applyEnv(f *Feature, getenv func(string) string) {
	key := envKey(f.Name)

	if v := strings.TrimSpace(getenv(key)); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			f.Rollout = 0
			if on {
				f.Rollout = 100
			}
		} else if p, err := strconv.Atoi(v); err == nil && p >= 0 && p <= 100 {
			f.Rollout = p
		}
	}

	if v := getenv(key + "_SECTIONS"); v != "" {
		f.Sections = f.Sections[:0]
		for _, s := range strings.Split(v, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				f.Sections = append(f.Sections, s)
			}
		}
	}
}

// IsEnabled reports whether feature is on for fc. Per-student overrides win
// over everything; unknown features are off.
func (ff *FeatureFlags) IsEnabled(feature string, fc *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if fc != nil && fc.StudentID != "" {
		if on, ok := ff.overrides[fc.StudentID+"\x00"+feature]; ok {
			return on
		}
	}

	f, ok := ff.features[feature]
	if !ok || f.Rollout == 0 {
		return false
	}
	if fc == nil {
		return true
	}
	if len(f.Sections) > 0 && fc.Section != "" && !slices.Contains(f.Sections, fc.Section) {
		return false
	}
	if f.Rollout < 100 && fc.StudentID != "" {
		return bucket(feature, fc.StudentID) < f.Rollout
	}
	return true
}

// EnabledFor is IsEnabled for a student in a section.
func (ff *FeatureFlags) EnabledFor(feature, studentID, section string) bool {
	return ff.IsEnabled(feature, &FeatureContext{StudentID: studentID, Section: section})
}

// bucket is stable, so a student does not flip between runs.
func bucket(feature, studentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	_, _ = h.Write([]byte(studentID))
	return int(h.Sum32() % 100)
}

// SetStudentOverride forces feature on or off for one student; the admin API
// calls it when a request names a student.
func (ff *FeatureFlags) SetStudentOverride(studentID, feature string, on bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.features[feature]; !ok {
		return ErrFeatureNotFound
	}
	ff.overrides[studentID+"\x00"+feature] = on
	return nil
}

// SetRolloutPercent changes a feature at runtime; the admin API calls it.
func (ff *FeatureFlags) SetRolloutPercent(feature string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[feature]
	if !ok {
		return ErrFeatureNotFound
	}
	f.Rollout = percent
	return nil
}

// Snapshot returns a copy of every feature, sorted by name.
func (ff *FeatureFlags) Snapshot() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		c := *f
		c.Sections = slices.Clone(f.Sections)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Feature) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (ff *FeatureFlags) EnableFeature(feature string) error  { return ff.SetRolloutPercent(feature, 100) }
func (ff *FeatureFlags) DisableFeature(feature string) error { return ff.SetRolloutPercent(feature, 0) }
