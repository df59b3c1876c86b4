package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestReadJSONMissing(t *testing.T) {
	var s sample
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadJSONCorrupt(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{"garbage": "{not json", "empty": "\n"} {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		var s sample
		ok, err := ReadJSON(path, &s)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrCorrupt), "%s: %v", name, err)
	}
}

func TestWriteJSONCreatesDirAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "orders.json")
	require.NoError(t, WriteJSON(path, []sample{{"a", 1}, {"b", 2}}))

	var got []sample
	ok, err := ReadJSON(path, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []sample{{"a", 1}, {"b", 2}}, got)

	// 不残留临时文件
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// 并发整文件替换时读者只会看到完整的 JSON
func TestWriteJSONConcurrentReadersNeverSeePartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, WriteJSON(path, sample{Name: "seed"}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = WriteJSON(path, sample{Name: "w", Count: worker*100 + j})
			}
		}(i)
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				var s sample
				if _, err := ReadJSON(path, &s); err != nil {
					t.Errorf("partial read: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSQLiteArchive(t *testing.T) {
	a, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive", "orders.db"))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	when := time.Date(2026, 2, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, a.Archive(ctx, []ArchivedOrder{
		{OrderID: "1", Timestamp: 100, Symbol: "NIFTY", Action: "BUY", Quantity: 130, Price: "101.5", PriceType: "LIMIT", Status: "complete", ArchivedAt: when},
		{OrderID: "2", Timestamp: 200, Symbol: "NIFTY", Action: "SELL", Quantity: 65, PriceType: "SL", Status: "pending", ArchivedAt: when},
	}))
	// 重复归档覆盖而不是报错
	require.NoError(t, a.Archive(ctx, []ArchivedOrder{
		{OrderID: "2", Timestamp: 200, Symbol: "NIFTY", Action: "SELL", Quantity: 65, PriceType: "SL", Status: "cancelled", ArchivedAt: when},
	}))

	all, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].OrderID)
	assert.Equal(t, "cancelled", all[0].Status)
	assert.Equal(t, "", all[0].Price)
	assert.Equal(t, "101.5", all[1].Price)
	assert.True(t, when.Equal(all[1].ArchivedAt))

	latest, err := a.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}
