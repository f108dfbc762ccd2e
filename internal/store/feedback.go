package store

import (
	"fmt"
	"sort"
	"time"
)

// TimestampLayout is the display format for feedback and reply times.
const TimestampLayout = "2006-01-02 15:04:05"

// Reply is an admin answer to a feedback entry.
type Reply struct {
	Admin     string `json:"admin"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Feedback is one rated comment.
type Feedback struct {
	ID         int    `json:"id"`
	User       string `json:"user"`
	Rating     int    `json:"rating"`
	Feedback   string `json:"feedback"`
	Timestamp  string `json:"timestamp"`
	AdminReply *Reply `json:"admin_reply"`
}

// FeedbackLog is the append-only list of feedback entries.
type FeedbackLog struct {
	file *JSONFile[[]Feedback]
}

// NewFeedbackLog creates a feedback store backed by path.
func NewFeedbackLog(path string) *FeedbackLog {
	return &FeedbackLog{
		file: NewJSONFile(path, func() []Feedback { return []Feedback{} }),
	}
}

// Add appends an entry with id max(id)+1 and returns it.
func (l *FeedbackLog) Add(user string, rating int, text string, now time.Time) (Feedback, error) {
	if rating < 1 || rating > 5 {
		return Feedback{}, fmt.Errorf("%w: rating %d out of range 1-5", ErrInvalidFeedback, rating)
	}
	if text == "" {
		return Feedback{}, fmt.Errorf("%w: feedback text is empty", ErrInvalidFeedback)
	}

	var entry Feedback
	err := l.file.Update(func(items *[]Feedback) error {
		next := 1
		for _, item := range *items {
			next = max(next, item.ID+1)
		}
		entry = Feedback{
			ID:        next,
			User:      user,
			Rating:    rating,
			Feedback:  text,
			Timestamp: now.Format(TimestampLayout),
		}
		*items = append(*items, entry)
		return nil
	})
	return entry, err
}

// All returns entries in storage order.
func (l *FeedbackLog) All() ([]Feedback, error) {
	return l.file.Load()
}

// Newest returns entries sorted by timestamp, newest first.
func (l *FeedbackLog) Newest() ([]Feedback, error) {
	items, err := l.All()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp != items[j].Timestamp {
			return items[i].Timestamp > items[j].Timestamp
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

// Reply sets the admin reply on entry id.
func (l *FeedbackLog) Reply(id int, admin, text string, now time.Time) error {
	return l.file.Update(func(items *[]Feedback) error {
		for i := range *items {
			if (*items)[i].ID == id {
				(*items)[i].AdminReply = &Reply{
					Admin:     admin,
					Text:      text,
					Timestamp: now.Format(TimestampLayout),
				}
				return nil
			}
		}
		return fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	})
}
