package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDailyRotatingWriter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writer, err := NewDailyRotatingWriter(dir, "app-", ".log")
	require.NoError(t, err)
	defer writer.Close()

	today := time.Now().Format("2006-01-02")
	assert.Equal(t, today, writer.currentDate)
	_, err = os.Stat(filepath.Join(dir, "app-"+today+".log"))
	assert.NoError(t, err)
}

func TestNewDailyRotatingWriter_InvalidPath(t *testing.T) {
	t.Parallel()
	writer, err := NewDailyRotatingWriter("/nonexistent/path/that/should/not/exist", "app-", ".log")
	assert.Error(t, err)
	assert.Nil(t, writer)
}

func TestDailyRotatingWriter_Write(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	writer, err := NewDailyRotatingWriter(dir, "app-", ".log")
	require.NoError(t, err)
	defer writer.Close()

	first := []byte("first\n")
	second := []byte("second\n")
	n, err := writer.Write(first)
	require.NoError(t, err)
	assert.Equal(t, len(first), n)
	_, err = writer.Write(second)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "app-"+time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))
}

func TestDailyRotatingWriter_RotatesOnNewDay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	day := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)

	writer, err := NewDailyRotatingWriter(dir, "app-", ".log")
	require.NoError(t, err)
	defer writer.Close()
	writer.now = func() time.Time { return day }

	_, err = writer.Write([]byte("late\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = writer.Write([]byte("early\n"))
	require.NoError(t, err)

	late, err := os.ReadFile(filepath.Join(dir, "app-2024-03-09.log"))
	require.NoError(t, err)
	early, err := os.ReadFile(filepath.Join(dir, "app-2024-03-10.log"))
	require.NoError(t, err)
	assert.Equal(t, "late\n", string(late))
	assert.Equal(t, "early\n", string(early))
	assert.Equal(t, "2024-03-10", writer.currentDate)
}

func TestDailyRotatingWriter_Close(t *testing.T) {
	t.Parallel()

	writer, err := NewDailyRotatingWriter(t.TempDir(), "app-", ".log")
	require.NoError(t, err)

	assert.NoError(t, writer.Close())
	assert.Nil(t, writer.file)
	assert.NoError(t, writer.Close())
}

func TestPruneRotatedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var dates []string
	for i := 1; i <= 10; i++ {
		date := time.Date(2024, 1, i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		dates = append(dates, date)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "app-"+date+".log"), []byte("x"), 0644))
	}
	others := []string{"other.txt", "app-incomplete", "traces-2024-01-01.json"}
	for _, name := range others {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	pruneRotatedFiles(dir, "app-", ".log")

	for _, date := range dates[:len(dates)-MaxRotatedFiles] {
		_, err := os.Stat(filepath.Join(dir, "app-"+date+".log"))
		assert.True(t, os.IsNotExist(err), "expected %s to be pruned", date)
	}
	for _, date := range dates[len(dates)-MaxRotatedFiles:] {
		_, err := os.Stat(filepath.Join(dir, "app-"+date+".log"))
		assert.NoError(t, err, "expected %s to remain", date)
	}
	for _, name := range others {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s to remain", name)
	}
}

func TestPruneRotatedFiles_NonexistentDir(t *testing.T) {
	t.Parallel()
	pruneRotatedFiles("/nonexistent/path/that/should/not/exist", "app-", ".log")
}
