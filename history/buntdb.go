package history

import (
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tidwall/buntdb"
	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/globals"
)

const seenCacheSize = 1024

// Archive is the optional buntdb-backed event log: chat lines, presence
// changes and per-user last-seen records. A nil *Archive is valid and all
// methods are no-ops on it, so callers never have to branch on whether the
// archive is configured.
type Archive struct {
	db *buntdb.DB

	// seenCache suppresses rewriting a user record when the descriptor has
	// not changed since the last write.
	seenCache *lru.Cache
}

type chatRecord struct {
	Room    string `json:"room"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Created int64  `json:"created"`
}

type presenceRecord struct {
	Room    string `json:"room"`
	User    string `json:"user"`
	What    string `json:"what"` // join, leave, rename
	Created int64  `json:"created"`
}

type userRecord struct {
	LastSeen string `json:"last_seen"`
	Created  int64  `json:"created"`
}

// NewArchive opens the archive configured in cfg.HistoryConfig. An empty
// name disables the archive, which is returned as nil with no error.
func NewArchive(cfg *config.Config) (*Archive, error) {
	if cfg.HistoryConfig.Name == "" {
		return nil, nil
	}
	db, err := buntdb.Open(cfg.HistoryConfig.Name)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("chatts", "chat:*", buntdb.IndexJSON("created"))
	if err != nil {
		db.Close()
		return nil, err
	}
	cache, err := lru.New(seenCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db, seenCache: cache}, nil
}

func (a *Archive) StoreChat(roomId, userId, text string, ts time.Time) {
	if a == nil {
		return
	}
	rec := chatRecord{Room: roomId, User: userId, Text: text, Created: ts.UnixNano()}
	a.set(fmt.Sprintf("chat:%d:%s:%s", ts.UnixNano(), roomId, userId), rec)
}

func (a *Archive) StorePresence(roomId, userId, what string, ts time.Time) {
	if a == nil {
		return
	}
	rec := presenceRecord{Room: roomId, User: userId, What: what, Created: ts.UnixNano()}
	a.set(fmt.Sprintf("presence:%d:%s:%s", ts.UnixNano(), roomId, userId), rec)
}

// StoreUser records a user's last-seen descriptor, skipping the write when
// the cached descriptor is unchanged.
func (a *Archive) StoreUser(userId, lastSeen string, ts time.Time) {
	if a == nil {
		return
	}
	if prev, ok := a.seenCache.Get(userId); ok && prev.(string) == lastSeen {
		return
	}
	a.seenCache.Add(userId, lastSeen)
	rec := userRecord{LastSeen: lastSeen, Created: ts.UnixNano()}
	a.set("user:"+userId, rec)
}

// LastSeen returns the stored descriptor for a user.
func (a *Archive) LastSeen(userId string) (string, time.Time, error) {
	if a == nil {
		return "", time.Time{}, buntdb.ErrNotFound
	}
	var rec userRecord
	err := a.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get("user:" + userId)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(v), &rec)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return rec.LastSeen, time.Unix(0, rec.Created), nil
}

func (a *Archive) set(key string, rec interface{}) {
	v, err := json.Marshal(rec)
	if err != nil {
		globals.AppLogger.Error("could not marshal archive record", "error", err)
		return
	}
	err = a.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(v), nil)
		return err
	})
	if err != nil {
		globals.AppLogger.Error("could not store archive record", "key", key, "error", err)
	}
}

func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}
