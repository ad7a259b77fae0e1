package storage

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "noticebot/pkg/logx"
)

// fileStore keeps one decimal id per line. Appends are fsynced before
// AddNotice returns, so a crash loses at most the id being written.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
	// set when the existing file does not end in a newline
	needNL bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s := &fileStore{log: log, path: path, f: f}
	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, st.Size()-1); err == nil && last[0] != '\n' {
			s.needNL = true
		}
	}
	return s, nil
}

func (s *fileStore) LoadNotices(ctx context.Context) ([]int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []int64{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return readIDs(f, s.log)
}

func readIDs(r io.Reader, log logx.Logger) ([]int64, error) {
	out := []int64{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			log.Warn("skipping malformed ledger line", logx.Int("line", lineNo), logx.String("text", line))
			continue
		}
		out = append(out, id)
	}
	return out, sc.Err()
}

func (s *fileStore) AddNotice(ctx context.Context, id int64, at time.Time) error {
	_ = ctx
	_ = at
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	buf := make([]byte, 0, 24)
	if s.needNL {
		buf = append(buf, '\n')
	}
	buf = strconv.AppendInt(buf, id, 10)
	buf = append(buf, '\n')
	if _, err := s.f.Write(buf); err != nil {
		return err
	}
	s.needNL = false
	return s.f.Sync()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
