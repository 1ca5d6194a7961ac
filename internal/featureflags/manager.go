// Package featureflags evaluates rollout flags configured through FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// StrictSwapConfirm switches swap confirmation to the transactional,
// compare-and-swap protocol that rejects stale or non-reciprocal confirms.
const StrictSwapConfirm = "strict_swap_confirm"

// rule is a parsed flag value: a percentage of users, where 0 is off and 100
// is everyone.
type rule struct {
	percent int
}

// parseRule accepts on/true/1, off/false/0 and N%. Anything else is rejected.
func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{percent: 100}, true
	case "off", "false", "0":
		return rule{percent: 0}, true
	}
	raw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return rule{}, false
	}
	pct, err := strconv.Atoi(raw)
	if err != nil {
		return rule{}, false
	}
	return rule{percent: min(max(pct, 0), 100)}, true
}

// Manager holds flags parsed from a comma-separated key=value list, e.g.
// "strict_swap_confirm=on,new_matcher=25%". It is immutable after
// construction and safe for concurrent use.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed entries are skipped.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = normalize(key)
		if key == "" {
			continue
		}
		if r, ok := parseRule(normalize(value)); ok {
			rules[key] = r
		}
	}
	return &Manager{rules: rules}
}

// Enabled reports whether name is on for userID. Partial rollouts are
// deterministic per user and never include the anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

// Names lists configured flags alphabetically.
func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.rules))
	for name := range m.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name)))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(strconv.AppendUint(nil, uint64(userID), 10))
	return int(h.Sum32() % 100)
}
