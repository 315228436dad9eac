package whatsapp

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
)

type FollowUpStatus string

const (
	FollowUpPending       FollowUpStatus = "PENDING"
	FollowUpRemindedOnce  FollowUpStatus = "REMINDED_ONCE"
	FollowUpRemindedTwice FollowUpStatus = "REMINDED_TWICE"
	FollowUpAbandoned     FollowUpStatus = "ABANDONED"
)

// Escalation thresholds: first reminder 2h after creation, second 24h after
// the first, abandoned 48h after the second.
const (
	firstReminderAfter  = 2 * time.Hour
	secondReminderAfter = 24 * time.Hour
	abandonAfter        = 48 * time.Hour
)

// FollowUp tracks one order awaiting payment. Entries live in memory only;
// a process restart drops them.
type FollowUp struct {
	ID             string         `json:"id"`
	OrderID        int64          `json:"order_id"`
	CustomerPhone  string         `json:"customer_phone"`
	CustomerName   string         `json:"customer_name"`
	TotalAmount    float64        `json:"total_amount"`
	Status         FollowUpStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	LastReminderAt *time.Time     `json:"last_reminder_at,omitempty"`
	ReminderCount  int            `json:"reminder_count"`
}

// FollowUpSummary buckets entries by status.
type FollowUpSummary struct {
	Pending       int `json:"pending"`
	RemindedOnce  int `json:"reminded_once"`
	RemindedTwice int `json:"reminded_twice"`
	Abandoned     int `json:"abandoned"`
}

// FollowUpAnalytics summarizes entries created within a trailing window.
type FollowUpAnalytics struct {
	TotalTransactions int             `json:"total_transactions"`
	TotalValue        float64         `json:"total_value"`
	StatusBreakdown   FollowUpSummary `json:"status_breakdown"`
	AverageValue      float64         `json:"average_value"`
	ConversionRate    float64         `json:"conversion_rate"`
	Period            string          `json:"period"`
}

// reminderSender issues one reminder send for an entry. Implemented by the
// Manager; stubbed in tests.
type reminderSender interface {
	sendReminder(ctx context.Context, entry FollowUp) error
}

// FollowUpStore is the in-memory pending payment ledger. All access is
// mutex-guarded: the scheduler tick and HTTP handlers run on different
// goroutines.
type FollowUpStore struct {
	mu      sync.Mutex
	entries map[int64]*FollowUp
	now     func() time.Time
}

func NewFollowUpStore(now func() time.Time) *FollowUpStore {
	if now == nil {
		now = time.Now
	}
	return &FollowUpStore{
		entries: make(map[int64]*FollowUp),
		now:     now,
	}
}

// Add registers a pending follow-up for an order. Re-registering an order id
// replaces the previous entry and resets its escalation.
func (s *FollowUpStore) Add(orderID int64, customerPhone string, customerName string, totalAmount float64) FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &FollowUp{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		CustomerPhone: customerPhone,
		CustomerName:  customerName,
		TotalAmount:   totalAmount,
		Status:        FollowUpPending,
		CreatedAt:     s.now(),
	}
	s.entries[orderID] = entry
	log.FollowUpOp("add", orderID).Info("Added pending payment follow-up")
	return *entry
}

// Remove drops an entry, normally on payment confirmation.
func (s *FollowUpStore) Remove(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[orderID]; !ok {
		return false
	}
	delete(s.entries, orderID)
	log.FollowUpOp("remove", orderID).Info("Removed pending payment follow-up")
	return true
}

func (s *FollowUpStore) Get(orderID int64) (FollowUp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[orderID]
	if !ok {
		return FollowUp{}, false
	}
	return *entry, true
}

// List returns all entries ordered by creation time.
func (s *FollowUpStore) List() []FollowUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FollowUp, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *FollowUpStore) Summary() FollowUpSummary {
	return summarize(s.List())
}

func summarize(entries []FollowUp) FollowUpSummary {
	var summary FollowUpSummary
	for _, entry := range entries {
		switch entry.Status {
		case FollowUpPending:
			summary.Pending++
		case FollowUpRemindedOnce:
			summary.RemindedOnce++
		case FollowUpRemindedTwice:
			summary.RemindedTwice++
		case FollowUpAbandoned:
			summary.Abandoned++
		}
	}
	return summary
}

// Analytics aggregates entries created within the trailing number of days.
func (s *FollowUpStore) Analytics(days int) FollowUpAnalytics {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days)

	var recent []FollowUp
	for _, entry := range s.List() {
		if !entry.CreatedAt.Before(cutoff) {
			recent = append(recent, entry)
		}
	}

	analytics := FollowUpAnalytics{
		TotalTransactions: len(recent),
		StatusBreakdown:   summarize(recent),
		Period:            "Last " + strconv.Itoa(days) + " days",
	}
	for _, entry := range recent {
		analytics.TotalValue += entry.TotalAmount
	}
	if len(recent) > 0 {
		analytics.AverageValue = analytics.TotalValue / float64(len(recent))
		notAbandoned := len(recent) - analytics.StatusBreakdown.Abandoned
		analytics.ConversionRate = float64(notAbandoned) / float64(len(recent)) * 100
	}
	return analytics
}

// markReminded advances the escalation after a successful reminder send and
// returns the updated entry.
func (s *FollowUpStore) markReminded(orderID int64) (FollowUp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[orderID]
	if !ok {
		return FollowUp{}, false
	}

	entry.ReminderCount++
	now := s.now()
	entry.LastReminderAt = &now
	switch entry.ReminderCount {
	case 1:
		entry.Status = FollowUpRemindedOnce
	case 2:
		entry.Status = FollowUpRemindedTwice
	default:
		entry.Status = FollowUpAbandoned
	}
	return *entry, true
}

// Tick applies the escalation rules to every entry. Reminder sends are
// fire-and-forget: a failed send leaves the entry untouched for the next
// tick. Abandonment needs no send and always applies.
func (s *FollowUpStore) Tick(ctx context.Context, sender reminderSender) {
	now := s.now()

	for _, entry := range s.List() {
		sinceCreated := now.Sub(entry.CreatedAt)
		sinceLastReminder := sinceCreated
		if entry.LastReminderAt != nil {
			sinceLastReminder = now.Sub(*entry.LastReminderAt)
		}

		switch {
		case entry.ReminderCount == 0 && sinceCreated >= firstReminderAfter:
			s.escalate(ctx, sender, entry)
		case entry.ReminderCount == 1 && sinceLastReminder >= secondReminderAfter:
			s.escalate(ctx, sender, entry)
		case entry.ReminderCount == 2 && sinceLastReminder >= abandonAfter:
			s.abandon(entry.OrderID)
		}
	}
}

func (s *FollowUpStore) escalate(ctx context.Context, sender reminderSender, entry FollowUp) {
	if err := sender.sendReminder(ctx, entry); err != nil {
		log.FollowUpOp("remind", entry.OrderID).WithError(err).Warn("Failed to send payment reminder")
		return
	}
	s.markReminded(entry.OrderID)
	log.FollowUpOp("remind", entry.OrderID).
		WithField("reminder_count", entry.ReminderCount+1).
		Info("Payment reminder sent")
}

func (s *FollowUpStore) abandon(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[orderID]
	if !ok {
		return
	}
	entry.Status = FollowUpAbandoned
	log.FollowUpOp("abandon", orderID).Info("Follow-up marked as abandoned")
}
