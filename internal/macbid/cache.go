package macbid

import (
	"encoding/binary"
	"errors"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
)

// ResponseCache keeps GET response bodies for a fixed ttl, keyed by the
// normalized request url. Every entry remembers when it was fetched so
// callers never mistake a cached page for a fresh observation. A nil cache
// or a zero ttl caches nothing.
type ResponseCache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenResponseCache opens a badger cache in `dir`, an empty dir keeps the
// cache in memory.
func OpenResponseCache(dir string, ttl time.Duration) (*ResponseCache, error) {
	if ttl <= 0 {
		return nil, nil
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{db: db, ttl: ttl}, nil
}

func (c *ResponseCache) enabled() bool {
	return c != nil && c.db != nil && c.ttl > 0
}

// entries written before values carried a fetch time live under other keys
const cacheKeyPrefix = "v2:"

func cacheKey(rawUrl string) (string, error) {
	parsed, err := url.Parse(rawUrl)
	if err != nil {
		return "", err
	}
	normalized := purell.NormalizeURL(
		parsed,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagSortQuery,
	)
	return cacheKeyPrefix + normalized, nil
}

// Get returns the cached body for `rawUrl` and when it was fetched, ok is
// false on a miss.
func (c *ResponseCache) Get(rawUrl string) (body []byte, fetchedAt time.Time, ok bool, err error) {
	if !c.enabled() {
		return nil, time.Time{}, false, nil
	}
	key, err := cacheKey(rawUrl)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	tx := c.db.NewTransaction(false)
	defer tx.Discard()
	item, err := tx.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if len(value) < 8 {
		return nil, time.Time{}, false, errors.New("cache entry is missing its fetch time")
	}
	fetchedAt = time.Unix(0, int64(binary.BigEndian.Uint64(value[:8])))
	return value[8:], fetchedAt, true, nil
}

// Set stores `body` as fetched at `fetchedAt`.
func (c *ResponseCache) Set(rawUrl string, body []byte, fetchedAt time.Time) error {
	if !c.enabled() {
		return nil
	}
	key, err := cacheKey(rawUrl)
	if err != nil {
		return err
	}
	value := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint64(value, uint64(fetchedAt.UnixNano()))
	value = append(value, body...)
	return c.db.Update(func(tx *badger.Txn) error {
		return tx.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(c.ttl))
	})
}

func (c *ResponseCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
