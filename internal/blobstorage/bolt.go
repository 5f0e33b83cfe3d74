package blobstorage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	objectsBucket  = []byte("objects")
	modifiedBucket = []byte("modified")
)

// BoltBlobStorage keeps objects in a single bbolt file. It serves local
// deployments without S3.
type BoltBlobStorage struct {
	db *bolt.DB
}

func NewBoltBlobStorage(path string) (*BoltBlobStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(objectsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(modifiedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltBlobStorage{db: db}, nil
}

func (b *BoltBlobStorage) Close() error {
	return b.db.Close()
}

func (b *BoltBlobStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var objects []Object
	err := b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(modifiedBucket)
		c := tx.Bucket(objectsBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			objects = append(objects, Object{
				Key:          string(k),
				Size:         int64(len(v)),
				LastModified: decodeTime(meta.Get(k)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return objects, nil
}

func (b *BoltBlobStorage) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (b *BoltBlobStorage) Store(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return put(tx, []byte(key), data)
	})
}

func (b *BoltBlobStorage) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get([]byte(srcKey))
		if v == nil {
			return fmt.Errorf("copy %s: %w", srcKey, ErrNotFound)
		}
		return put(tx, []byte(dstKey), append([]byte(nil), v...))
	})
}

func (b *BoltBlobStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(objectsBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(modifiedBucket).Delete([]byte(key))
	})
}

func put(tx *bolt.Tx, key, data []byte) error {
	if err := tx.Bucket(objectsBucket).Put(key, data); err != nil {
		return err
	}
	return tx.Bucket(modifiedBucket).Put(key, encodeTime(time.Now()))
}

func encodeTime(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

func decodeTime(b []byte) time.Time {
	if len(b) != 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b)))
}
