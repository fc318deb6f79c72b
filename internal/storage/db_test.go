package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDB(tb testing.TB) *DB {
	db, err := Open(":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() {
		require.NoError(tb, db.Close())
	})
	return db
}

func search(id, topic string, age time.Duration) Search {
	return Search{
		ID:        id,
		Topic:     topic,
		Agent:     "NewsSearch_assistant",
		API:       "google",
		Model:     "gemini-2.0-flash",
		CreatedAt: time.Now().Add(-age),
	}
}

func TestDB(t *testing.T) {
	const testid = "df31ae23-ab8b-45b5-943c-2f846c570997"

	t.Run("list empty", func(t *testing.T) {
		require.Empty(t, testDB(t).List())
	})

	t.Run("save", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(testid, "interest rates", 0)))

		s, err := db.Find("df31")
		require.NoError(t, err)
		require.Equal(t, testid, s.ID)
		require.Equal(t, "interest rates", s.Topic)
		require.Equal(t, time.UTC, s.CreatedAt.Location())
		require.Len(t, db.List(), 1)
	})

	t.Run("save sets time", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(Search{ID: testid, Topic: "rates"}))
		s, err := db.Latest()
		require.NoError(t, err)
		require.WithinDuration(t, time.Now(), s.CreatedAt, time.Minute)
	})

	t.Run("save no id", func(t *testing.T) {
		require.ErrorContains(t, testDB(t).Save(search("", "rates", 0)), "empty id")
	})

	t.Run("save no topic", func(t *testing.T) {
		require.ErrorContains(t, testDB(t).Save(search(NewID(), " ", 0)), "empty topic")
	})

	t.Run("update", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(testid, "rates", time.Hour)))
		require.NoError(t, db.Save(search(testid, "interest rates", 0)))

		s, err := db.Find("df31")
		require.NoError(t, err)
		require.Equal(t, "interest rates", s.Topic)
		require.Len(t, db.List(), 1)
	})

	t.Run("latest", func(t *testing.T) {
		db := testDB(t)
		_, err := db.Latest()
		require.ErrorIs(t, err, ErrNoMatches)

		next := NewID()
		require.NoError(t, db.Save(search(testid, "older", time.Hour)))
		require.NoError(t, db.Save(search(next, "newer", 0)))

		s, err := db.Latest()
		require.NoError(t, err)
		require.Equal(t, next, s.ID)
		require.Equal(t, []string{"newer", "older"}, topics(db.List()))
	})

	t.Run("find by topic", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(NewID(), "rates", 0)))
		require.NoError(t, db.Save(search(testid, "elections", 0)))

		s, err := db.Find("elections")
		require.NoError(t, err)
		require.Equal(t, testid, s.ID)
	})

	t.Run("short prefix matches topics only", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(testid, "rates", 0)))
		_, err := db.Find("df3")
		require.ErrorIs(t, err, ErrNoMatches)
	})

	t.Run("find many", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(testid, "rates", 0)))
		require.NoError(t, db.Save(search("df31ae99-0000-4000-8000-000000000000", "elections", 0)))
		_, err := db.Find("df31ae")
		require.ErrorIs(t, err, ErrManyMatches)
	})

	t.Run("delete", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(testid, "rates", 0)))
		require.NoError(t, db.Delete(NewID()))
		require.Len(t, db.List(), 1)
		require.NoError(t, db.Delete(testid))
		require.Empty(t, db.List())
		require.Error(t, db.Delete(""))
	})

	t.Run("older than", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Save(search(NewID(), "last week", 7*24*time.Hour)))
		require.NoError(t, db.Save(search(NewID(), "last month", 30*24*time.Hour)))
		require.NoError(t, db.Save(search(NewID(), "today", time.Minute)))

		require.Equal(t, []string{"last week", "last month"}, topics(db.OlderThan(24*time.Hour)))
		require.Empty(t, db.OlderThan(365*24*time.Hour))
	})

	t.Run("completions", func(t *testing.T) {
		db := testDB(t)
		const id1 = "fc5012d8-c670-43ea-8a46-a3c05488a0e1"
		const id2 = "6c33f716-94bf-41a1-8c84-4a96d1f62f15"
		require.NoError(t, db.Save(search(id1, "some topic", 0)))
		require.NoError(t, db.Save(search(id2, "football", 0)))

		require.Equal(t, []string{
			"fc5012d8\tsome topic",
			"football\t6c33f716",
		}, db.Completions("f"))
		require.Equal(t, []string{id1 + "\tsome topic"}, db.Completions(id1[:9]))
	})

	t.Run("persists", func(t *testing.T) {
		dir := t.TempDir()
		db, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, db.Save(search(testid, "rates", 0)))
		require.NoError(t, db.Save(search(NewID(), "elections", 0)))
		require.NoError(t, db.Delete(testid))
		require.NoError(t, db.Close())

		db2, err := Open(dir)
		require.NoError(t, err)
		require.Equal(t, []string{"elections"}, topics(db2.List()))

		_, err = os.Stat(filepath.Join(dir, indexFileName))
		require.NoError(t, err)
	})

	t.Run("corrupt index", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, indexFileName), []byte("{\"op\":\"upsert\"}\n"), 0o600))
		_, err := Open(dir)
		require.ErrorContains(t, err, "index line 1")
	})
}

func TestCompact(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	id := NewID()
	for i := range compactMinOps + 10 {
		require.NoError(t, db.Save(search(id, "rates", time.Duration(i)*time.Second)))
	}

	bts, err := os.ReadFile(filepath.Join(dir, indexFileName))
	require.NoError(t, err)
	lines := strings.Count(string(bts), "\n")
	require.Less(t, lines, compactMinOps)

	db2, err := Open(dir)
	require.NoError(t, err)
	require.Len(t, db2.List(), 1)
}

func TestShortID(t *testing.T) {
	id := NewID()
	require.True(t, IsID(id))
	require.False(t, IsID("nope"))
	require.Equal(t, id[:ShortLen], ShortID(id))
	require.Equal(t, "abc", ShortID("abc"))
}

func topics(list []Search) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Topic)
	}
	return out
}

func TestSharedIndex(t *testing.T) {
	t.Run("writes keep records of other processes", func(t *testing.T) {
		dir := t.TempDir()
		first, err := Open(dir)
		require.NoError(t, err)
		second, err := Open(dir)
		require.NoError(t, err)

		require.NoError(t, second.Save(search(NewID(), "elections", 0)))
		require.NoError(t, first.Save(search(NewID(), "rates", 0)))
		require.Len(t, first.List(), 2)

		reopened, err := Open(dir)
		require.NoError(t, err)
		require.Len(t, reopened.List(), 2)
	})

	t.Run("compaction keeps records of other processes", func(t *testing.T) {
		dir := t.TempDir()
		first, err := Open(dir)
		require.NoError(t, err)
		second, err := Open(dir)
		require.NoError(t, err)

		other := NewID()
		require.NoError(t, second.Save(search(other, "elections", 0)))

		id := NewID()
		for i := range compactMinOps + 10 {
			require.NoError(t, first.Save(search(id, "rates", time.Duration(i)*time.Second)))
		}

		bts, err := os.ReadFile(filepath.Join(dir, indexFileName))
		require.NoError(t, err)
		require.Less(t, strings.Count(string(bts), "\n"), compactMinOps)

		reopened, err := Open(dir)
		require.NoError(t, err)
		found, err := reopened.Find("elections")
		require.NoError(t, err)
		require.Equal(t, other, found.ID)
	})

	t.Run("delete of a record saved elsewhere", func(t *testing.T) {
		dir := t.TempDir()
		first, err := Open(dir)
		require.NoError(t, err)
		second, err := Open(dir)
		require.NoError(t, err)

		id := NewID()
		require.NoError(t, second.Save(search(id, "elections", 0)))
		require.NoError(t, first.Delete(id))

		reopened, err := Open(dir)
		require.NoError(t, err)
		require.Empty(t, reopened.List())
	})

	t.Run("failed write leaves memory untouched", func(t *testing.T) {
		dir := t.TempDir()
		db, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, db.Save(search(NewID(), "rates", 0)))

		index := filepath.Join(dir, indexFileName)
		require.NoError(t, os.Remove(index))
		require.NoError(t, os.Mkdir(index, 0o700))

		require.Error(t, db.Save(search(NewID(), "elections", 0)))
		require.Len(t, db.List(), 1)
		_, err = db.Find("elections")
		require.ErrorIs(t, err, ErrNoMatches)
	})
}
