package stats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Snapshot is the engagement counter set served to the dashboard. Persisted
// as pretty-printed JSON so operators can inspect and hand-edit it.
type Snapshot struct {
	TotalOutreach    int         `json:"totalOutreach"`
	TotalReplies     int         `json:"totalReplies"`
	PendingDrafts    int         `json:"pendingDrafts"`
	ActiveLeads      int         `json:"activeLeads"`
	ResponseRate     int         `json:"responseRate"`
	ResponseRateText string      `json:"responseRateText"`
	LastUpdated      time.Time   `json:"lastUpdated"`
	WeeklyData       []DayEntry  `json:"weeklyData"`
	ContactedEmails  []string    `json:"contactedEmails"`
}

// DayEntry is one day in the rolling weekly series.
type DayEntry struct {
	Name    string `json:"name"` // weekday abbreviation
	Sent    int    `json:"sent"`
	Replies int    `json:"replies"`
	Date    string `json:"date"` // YYYY-MM-DD
}

// Service tracks outreach engagement counters backed by a JSON file.
// Every mutation persists immediately; a failed save is logged and the
// in-memory state stays authoritative until the next successful write.
type Service struct {
	path string
	now  func() time.Time

	mu    sync.Mutex
	stats Snapshot
}

func NewService(path string) *Service {
	s := &Service{path: path, now: time.Now}
	s.stats = s.load()
	return s
}

func (s *Service) load() Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("load stats failed", "path", s.path, "error", err)
		}
		return emptySnapshot(s.now())
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("stats file corrupt, resetting", "path", s.path, "error", err)
		return emptySnapshot(s.now())
	}
	return snap
}

func emptySnapshot(now time.Time) Snapshot {
	return Snapshot{
		LastUpdated:     now,
		WeeklyData:      []DayEntry{},
		ContactedEmails: []string{},
	}
}

func (s *Service) save() {
	s.stats.LastUpdated = s.now()
	s.stats.ResponseRateText = fmt.Sprintf("%d%%", s.stats.ResponseRate)

	data, err := json.MarshalIndent(s.stats, "", "  ")
	if err != nil {
		slog.Error("marshal stats failed", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Error("create stats dir failed", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Error("save stats failed", "path", s.path, "error", err)
	}
}

// IncrementOutreach records n sent emails and refreshes the response rate
// and today's weekly entry.
func (s *Service) IncrementOutreach(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalOutreach += n
	s.updateResponseRate()
	s.addWeeklyLocked(n, 0)
	s.save()
}

// IncrementReplies records n received replies.
func (s *Service) IncrementReplies(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalReplies += n
	s.updateResponseRate()
	s.addWeeklyLocked(0, n)
	s.save()
}

func (s *Service) SetPendingDrafts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.PendingDrafts = n
	s.save()
}

func (s *Service) SetActiveLeads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.ActiveLeads = n
	s.save()
}

func (s *Service) updateResponseRate() {
	if s.stats.TotalOutreach > 0 {
		rate := float64(s.stats.TotalReplies) / float64(s.stats.TotalOutreach) * 100
		s.stats.ResponseRate = int(math.Round(rate))
	} else {
		s.stats.ResponseRate = 0
	}
}

// addWeeklyLocked merges counts into today's entry, creating it if absent.
// The series keeps at most the most recent 7 days.
func (s *Service) addWeeklyLocked(sent, replies int) {
	today := s.now()
	dateStr := today.Format("2006-01-02")

	for i := range s.stats.WeeklyData {
		if s.stats.WeeklyData[i].Date == dateStr {
			s.stats.WeeklyData[i].Sent += sent
			s.stats.WeeklyData[i].Replies += replies
			return
		}
	}

	s.stats.WeeklyData = append(s.stats.WeeklyData, DayEntry{
		Name:    today.Format("Mon"),
		Sent:    sent,
		Replies: replies,
		Date:    dateStr,
	})
	if len(s.stats.WeeklyData) > 7 {
		s.stats.WeeklyData = s.stats.WeeklyData[len(s.stats.WeeklyData)-7:]
	}
}

// AddContactedEmail appends a normalized address to the contacted list,
// ignoring blanks and duplicates.
func (s *Service) AddContactedEmail(email string) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.stats.ContactedEmails {
		if e == normalized {
			return
		}
	}
	s.stats.ContactedEmails = append(s.stats.ContactedEmails, normalized)
	s.save()
}

// IsContacted reports whether the address is already on the contacted list.
func (s *Service) IsContacted(email string) bool {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.stats.ContactedEmails {
		if e == normalized {
			return true
		}
	}
	return false
}

// Get returns a copy of the current snapshot with derived fields filled in.
func (s *Service) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.stats
	snap.ResponseRateText = fmt.Sprintf("%d%%", snap.ResponseRate)
	snap.WeeklyData = append([]DayEntry(nil), s.stats.WeeklyData...)
	snap.ContactedEmails = append([]string(nil), s.stats.ContactedEmails...)
	return snap
}

// Reset zeroes every counter and persists.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = emptySnapshot(s.now())
	s.save()
}
