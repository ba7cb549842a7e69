package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "postbot/pkg/logx"
)

// FileSnapshot persists the job list as a pretty-printed JSON array.
// Writes are asynchronous and best effort; the registry's in-memory
// state stays authoritative even when the disk is unwritable. Two
// racing writes resolve last-completed-wins, which is safe because each
// write carries the entire registry state at the time it was issued.
type FileSnapshot struct {
	path string
	log  logx.Logger

	mu sync.Mutex // serializes writers
	wg sync.WaitGroup
}

func NewFileSnapshot(path string, log logx.Logger) *FileSnapshot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileSnapshot{path: path, log: log}
}

func (s *FileSnapshot) Save(jobs []JobData) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.write(jobs); err != nil {
			s.log.Warn("job snapshot write failed", logx.String("path", s.path), logx.Err(err))
		}
	}()
}

func (s *FileSnapshot) write(jobs []JobData) error {
	b, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the snapshot once at startup. A missing file is an empty
// registry. An unreadable or syntactically broken file is logged and
// treated as empty so one corrupt snapshot never wedges the bot. Valid
// JSON of the wrong shape (not an array) is returned as an error: it
// usually means the operator pointed the bot at the wrong file.
func (s *FileSnapshot) Load() ([]JobData, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.log.Warn("job snapshot read failed", logx.String("path", s.path), logx.Err(err))
		return nil, nil
	}
	var jobs []JobData
	if err := json.Unmarshal(b, &jobs); err != nil {
		var probe any
		if jsonErr := json.Unmarshal(b, &probe); jsonErr == nil {
			return nil, fmt.Errorf("job snapshot %s: expected a JSON array, got %T", s.path, probe)
		}
		s.log.Warn("job snapshot malformed, starting empty", logx.String("path", s.path), logx.Err(err))
		return nil, nil
	}
	return jobs, nil
}

// Wait blocks until all in-flight snapshot writes finish. Called on
// shutdown to avoid losing the final mutation.
func (s *FileSnapshot) Wait() {
	s.wg.Wait()
}
