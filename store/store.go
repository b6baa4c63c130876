package store

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/tjcrane/roomwarden/globals"
)

// Kind names one of the persisted blobs.
type Kind string

const (
	KindSettings Kind = "settings"
	KindMailbox  Kind = "mailbox"
)

// writer states of a blob file. A Request while a write is in flight only
// parks the latest snapshot; however many mutations arrive during one write,
// exactly one trailing write follows.
type writeState int

const (
	stateIdle writeState = iota
	stateWriting
	stateWritingPending
)

type blobFile struct {
	path    string
	lock    *flock.Flock
	state   writeState
	pending []byte // latest snapshot parked while a write is in flight
}

// Store is the coalescing, crash-safe writer and lenient reader for the
// settings and mailbox blobs. Writes go to a temporary sibling file first and
// are renamed over the destination; when the rename fails the data is written
// in place as a best-effort fallback. The files are flock-guarded so the
// admin CLI can operate on them while the bot runs.
type Store struct {
	mu    sync.Mutex
	idle  *sync.Cond
	files map[Kind]*blobFile

	// writeBlob performs the actual durable write, replaceable in tests.
	writeBlob func(path string, data []byte) error
}

func NewStore(settingsPath, mailPath string) *Store {
	s := &Store{
		files: map[Kind]*blobFile{
			KindSettings: {path: settingsPath, lock: flock.New(settingsPath + ".lock")},
			KindMailbox:  {path: mailPath, lock: flock.New(mailPath + ".lock")},
		},
	}
	s.idle = sync.NewCond(&s.mu)
	s.writeBlob = writeAtomic
	return s
}

// Request enqueues a durable write of the given blob. The snapshot is
// marshalled immediately, so later mutations of the passed structure do not
// leak into an earlier request. If no write for the blob is in flight the
// write begins at once; otherwise the snapshot is parked and flushed in a
// single trailing write once the in-flight one completes.
func (s *Store) Request(kind Kind, snapshot interface{}) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		globals.AppLogger.Error("could not marshal blob", "kind", kind, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[kind]
	if !ok {
		globals.AppLogger.Error("unknown blob kind", "kind", kind)
		return
	}
	switch f.state {
	case stateIdle:
		f.state = stateWriting
		go s.write(f, data)
	case stateWriting:
		f.state = stateWritingPending
		f.pending = data
	case stateWritingPending:
		f.pending = data
	}
}

func (s *Store) write(f *blobFile, data []byte) {
	if err := f.lock.Lock(); err != nil {
		globals.AppLogger.Error("could not lock blob file", "path", f.path, "error", err)
	} else {
		defer f.lock.Unlock()
	}
	if err := s.writeBlob(f.path, data); err != nil {
		globals.AppLogger.Error("could not write blob file", "path", f.path, "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.state == stateWritingPending {
		pending := f.pending
		f.pending = nil
		f.state = stateWriting
		go s.write(f, pending)
		return
	}
	f.state = stateIdle
	s.idle.Broadcast()
}

// writeAtomic writes to a temporary path and atomically replaces the
// destination. If the rename fails the data is written directly in place,
// accepting the weaker guarantee.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".0"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return ioutil.WriteFile(path, data, 0644)
	}
	return nil
}

// Flush blocks until every requested write has reached disk.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		busy := false
		for _, f := range s.files {
			if f.state != stateIdle {
				busy = true
			}
		}
		if !busy {
			return
		}
		s.idle.Wait()
	}
}

// Load parses the blob into v. On any read or parse failure (missing file,
// corrupt JSON) v is left untouched so the caller keeps its empty default,
// and startup proceeds.
func (s *Store) Load(kind Kind, v interface{}) {
	f, ok := s.files[kind]
	if !ok {
		return
	}
	if err := f.lock.RLock(); err == nil {
		defer f.lock.Unlock()
	}
	data, err := ioutil.ReadFile(f.path)
	if err != nil {
		globals.AppLogger.Debug("no persisted blob", "path", f.path, "error", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		globals.AppLogger.Warn("could not parse blob, starting empty", "path", f.path, "error", err)
	}
}
