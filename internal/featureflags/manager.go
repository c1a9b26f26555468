// Package featureflags evaluates runtime switches configured through FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Known flags.
const (
	// FeedCache serves the first feed page through the Redis cache.
	FeedCache = "feed_cache"
	// ChatRedisSeq assigns chat sequence numbers with Redis INCR instead of the database.
	ChatRedisSeq = "chat_redis_seq"
)

// Manager holds flags parsed from a list such as
// "feed_cache=on,chat_redis_seq=25%". Each flag is stored as the percentage
// of users it is on for.
type Manager struct {
	percent map[string]int
}

// NewManager parses raw. Values are on/true/1, off/false/0 or N%; entries
// that do not parse are treated as off.
func NewManager(raw string) *Manager {
	m := &Manager{percent: make(map[string]int)}
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(entry, "=")
		name = normalize(name)
		if !ok || name == "" {
			continue
		}
		m.percent[name] = parsePercent(normalize(value))
	}
	return m
}

func parsePercent(v string) int {
	switch v {
	case "on", "true", "1":
		return 100
	case "off", "false", "0", "":
		return 0
	}
	digits, ok := strings.CutSuffix(v, "%")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return min(max(n, 0), 100)
}

// Enabled reports whether name is on for userID. Partial rollouts bucket
// users by a hash of the flag name and id, so a user's answer is stable; the
// anonymous user (id 0) is only included at 100%.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	switch pct := m.percent[name]; {
	case pct >= 100:
		return true
	case pct <= 0 || userID == 0:
		return false
	default:
		return bucket(name, userID) < pct
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(strconv.AppendUint(nil, uint64(userID), 10))
	return int(h.Sum32() % 100)
}
