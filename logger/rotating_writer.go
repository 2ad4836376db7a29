package logger

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxRotatedFiles is how many daily files a DailyRotatingWriter keeps.
const MaxRotatedFiles = 7

// DailyRotatingWriter appends to <dir>/<prefix><YYYY-MM-DD><suffix>,
// switching files at the first write of each day and pruning all but the
// newest MaxRotatedFiles files with the same prefix and suffix.
type DailyRotatingWriter struct {
	mu          sync.Mutex
	dir         string
	prefix      string
	suffix      string
	currentDate string
	file        *os.File
	now         func() time.Time
}

var _ io.WriteCloser = (*DailyRotatingWriter)(nil)

func NewDailyRotatingWriter(dir, prefix, suffix string) (*DailyRotatingWriter, error) {
	w := &DailyRotatingWriter{
		dir:    dir,
		prefix: prefix,
		suffix: suffix,
		now:    time.Now,
	}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *DailyRotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *DailyRotatingWriter) fileName(date string) string {
	return w.prefix + date + w.suffix
}

func (w *DailyRotatingWriter) rotateIfNeeded() error {
	today := w.now().Format("2006-01-02")
	if w.currentDate == today && w.file != nil {
		return nil
	}

	file, err := os.OpenFile(
		filepath.Join(w.dir, w.fileName(today)),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return err
	}

	if w.file != nil {
		w.file.Close()
	}
	w.file = file
	w.currentDate = today

	pruneRotatedFiles(w.dir, w.prefix, w.suffix)
	return nil
}

func (w *DailyRotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

func pruneRotatedFiles(dir, prefix, suffix string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	if len(names) <= MaxRotatedFiles {
		return
	}

	// dates sort lexically
	sort.Strings(names)
	for _, name := range names[:len(names)-MaxRotatedFiles] {
		os.Remove(filepath.Join(dir, name))
	}
}
