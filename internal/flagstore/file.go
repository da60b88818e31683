package flagstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

// fileBackend is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.flags.snapshot.json (periodic snapshot)
//   - <prefix>.flags.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot. Since flags are
// last-write-wins, replay order is just "later line wins".
type fileBackend struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	flags        map[string]update.Record

	writes int
}

type journalEntry struct {
	Key     string         `json:"key"`
	Deleted bool           `json:"deleted,omitempty"`
	Record  *update.Record `json:"record,omitempty"`
}

const compactEvery = 512

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("flagstore: path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".flags.snapshot.json"
	journalPath := prefix + ".flags.journal.jsonl"

	flags := map[string]update.Record{}
	_ = loadSnapshot(snapPath, flags)
	_ = replayJournal(journalPath, flags)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileBackend{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		flags:        flags,
	}, nil
}

func (b *fileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	err := b.compactLocked()
	cerr := b.journal.Close()
	b.journal = nil
	if err != nil {
		return err
	}
	return cerr
}

func (b *fileBackend) Put(ctx context.Context, key string, rec update.Record) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return ErrClosed
	}
	b.flags[key] = rec
	return b.appendLocked(journalEntry{Key: key, Record: &rec})
}

func (b *fileBackend) Get(ctx context.Context, key string) (update.Record, bool, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.flags[key]
	return rec, ok, nil
}

func (b *fileBackend) Delete(ctx context.Context, key string) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return ErrClosed
	}
	if _, ok := b.flags[key]; !ok {
		return nil
	}
	delete(b.flags, key)
	return b.appendLocked(journalEntry{Key: key, Deleted: true})
}

func (b *fileBackend) Keys(ctx context.Context) ([]string, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.flags))
	for k := range b.flags {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *fileBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	ms := cutoff.UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return 0, ErrClosed
	}
	var n int
	for k, rec := range b.flags {
		if rec.Timestamp < ms {
			delete(b.flags, k)
			if err := b.appendLocked(journalEntry{Key: k, Deleted: true}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (b *fileBackend) appendLocked(e journalEntry) error {
	if err := json.NewEncoder(b.journal).Encode(e); err != nil {
		return err
	}
	b.writes++
	if b.writes%compactEvery == 0 {
		if err := b.compactLocked(); err != nil {
			b.log.Debug("flag journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (b *fileBackend) compactLocked() error {
	tmp := b.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(b.flags); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.snapshotPath); err != nil {
		return err
	}
	if err := b.journal.Truncate(0); err != nil {
		return err
	}
	_, err = b.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]update.Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]update.Record
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]update.Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var e journalEntry
		if err := json.Unmarshal(s.Bytes(), &e); err != nil {
			continue
		}
		if e.Key == "" {
			continue
		}
		if e.Deleted {
			delete(out, e.Key)
			continue
		}
		if e.Record != nil {
			out[e.Key] = *e.Record
		}
	}
	return s.Err()
}
