package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRecordAndStats(t *testing.T) {
	c := NewCounter(filepath.Join(t.TempDir(), EmotionsFile))

	for _, label := range []string{"happy", "happy", "sad", "happy"} {
		require.NoError(t, c.Record(label))
	}

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"happy": 3, "sad": 1}, counts)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.InDelta(t, 75.0, stats.Get("happy").Percentage, 1e-9)
	assert.InDelta(t, 25.0, stats.Get("sad").Percentage, 1e-9)
	assert.Equal(t, "happy", stats.Most.Label)
	assert.Equal(t, "sad", stats.Least.Label)
	assert.Zero(t, stats.Get("angry").Count)
}

func TestComputeStatsEmptyAndTies(t *testing.T) {
	empty := ComputeStats(map[string]int{})
	assert.Zero(t, empty.Total)
	assert.Nil(t, empty.Most)
	assert.Nil(t, empty.Least)

	tied := ComputeStats(map[string]int{"sad": 2, "calm": 2, "fear": 1, "angry": 1})
	assert.Equal(t, "calm", tied.Most.Label)
	assert.Equal(t, "angry", tied.Least.Label)
	assert.Equal(t, []string{"calm", "sad", "angry", "fear"}, []string{
		tied.Entries[0].Label, tied.Entries[1].Label, tied.Entries[2].Label, tied.Entries[3].Label,
	})
}

func TestCounterConcurrentIncrements(t *testing.T) {
	c := NewCounter(filepath.Join(t.TempDir(), EmotionsFile))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, c.Record("calm"))
			}
		}()
	}
	wg.Wait()

	counts, err := c.Counts()
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, counts["calm"])
}

func TestCounterCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), EmotionsFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := NewCounter(path)
	assert.ErrorIs(t, c.Record("happy"), ErrCorrupt)

	// the corrupt file is left for inspection rather than overwritten
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewCounter(filepath.Join(dir, StoriesFile))
	require.NoError(t, c.Record("fear"))
	require.NoError(t, c.Record("fear"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StoriesFile, entries[0].Name())
}

func TestWriteAtomicKeepsOriginalOnEncodeFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, AdminFile)
	require.NoError(t, writeAtomic(path, AdminProfile{Bio: "first"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	err = writeAtomic(path, map[string]any{"bad": make(chan int)})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"first"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNullDocumentIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), UsersFile)
	require.NoError(t, os.WriteFile(path, []byte("null\n"), 0o644))

	users := NewUsers(path)
	require.NoError(t, users.Create("alice", User{Email: "a@example.com"}))
	n, err := users.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUsers(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Users.Create("bob", User{Email: "bob@example.com", Status: StatusOffline}))
	require.NoError(t, s.Users.Create("alice", User{Email: "alice@example.com", Status: StatusOffline}))
	assert.ErrorIs(t, s.Users.Create("bob", User{}), ErrExists)

	require.NoError(t, s.Users.Update("bob", func(u *User) error {
		u.Status = StatusOnline
		u.IsLoggedIn = true
		return nil
	}))
	bob, err := s.Users.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, bob.Status)
	assert.True(t, bob.IsLoggedIn)
	assert.NotNil(t, bob.Emotions)

	_, err = s.Users.Get("carol")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Users.Update("carol", func(*User) error { return nil }), ErrNotFound)

	name, _, err := s.Users.FindByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	names, err := s.Users.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	require.NoError(t, s.Users.Upsert("dave", func(u *User) error {
		u.Bio = "new"
		return nil
	}))
	dave, err := s.Users.Get("dave")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, dave.Status)
}

func TestFeedbackLog(t *testing.T) {
	log := NewFeedbackLog(filepath.Join(t.TempDir(), FeedbackFile))
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := log.Add("alice", 5, "lovely", base)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "2025-03-01 12:00:00", first.Timestamp)

	second, err := log.Add("bob", 3, "ok", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	_, err = log.Add("bob", 0, "bad rating", base)
	assert.Error(t, err)
	_, err = log.Add("bob", 4, "", base)
	assert.Error(t, err)

	newest, err := log.Newest()
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, 2, newest[0].ID)

	require.NoError(t, log.Reply(1, "admin", "thanks", base.Add(time.Hour)))
	assert.ErrorIs(t, log.Reply(42, "admin", "?", base), ErrNotFound)

	all, err := log.All()
	require.NoError(t, err)
	require.NotNil(t, all[0].AdminReply)
	assert.Equal(t, "thanks", all[0].AdminReply.Text)
	assert.Nil(t, all[1].AdminReply)
}

func TestFeedbackIDsFollowMax(t *testing.T) {
	path := filepath.Join(t.TempDir(), FeedbackFile)
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 7, "user": "x", "rating": 2, "feedback": "y", "timestamp": "2024-01-01 00:00:00", "admin_reply": null}]`), 0o644))

	entry, err := NewFeedbackLog(path).Add("z", 4, "next", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 8, entry.ID)
}

func TestResetTokens(t *testing.T) {
	tokens := NewResetTokens(filepath.Join(t.TempDir(), ResetTokensFile))
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	token, err := tokens.Issue("alice", "alice@example.com", now)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	info, err := tokens.Lookup(token, time.Hour, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)

	_, err = tokens.Lookup(token, time.Hour, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrExpired)

	_, err = tokens.Lookup("nope", time.Hour, now)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := tokens.Prune(time.Hour, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	token, err = tokens.Issue("bob", "bob@example.com", now)
	require.NoError(t, err)
	require.NoError(t, tokens.Consume(token))
	_, err = tokens.Lookup(token, 0, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminProfile(t *testing.T) {
	admin := NewAdmin(filepath.Join(t.TempDir(), AdminFile))

	profile, err := admin.Get()
	require.NoError(t, err)
	assert.Empty(t, profile.Bio)

	require.NoError(t, admin.Update(func(p *AdminProfile) error {
		p.Bio = "keeper of tales"
		return nil
	}))
	profile, err = admin.Get()
	require.NoError(t, err)
	assert.Equal(t, "keeper of tales", profile.Bio)
}
