package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/cthyb/blobstore"
)

// Store keeps blobs as objects below a key prefix of one bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ blobstore.BlobStore = (*Store)(nil)

// NewStore returns a store writing to bucket. rootPrefix is prepended to
// every blob name (e.g. "cthyb/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: rootPrefix}
}

func (s *Store) key(name string) string { return path.Join(s.prefix, name) }

// name maps an object key back to a blob name.
func (s *Store) name(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

// Open stats the object and returns a ranged reader for it.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	obj := &object{client: s.client, bucket: s.bucket, key: s.key(name)}
	info, err := s.client.StatObject(ctx, obj.bucket, obj.key, minio.StatObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	obj.size = info.Size
	return obj, nil
}

// Put uploads data as a single object.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

// Create streams writes into an upload of unknown size. The object appears
// when the writer is closed.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()
	w := &upload{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, s.key(name), pr, -1, minio.PutObjectOptions{})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Delete removes the object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err = notFound(err); errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	return err
}

// List returns the sorted blob names below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	opts := minio.ListObjectsOptions{Prefix: s.key(prefix), Recursive: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return nil, info.Err
		}
		if n := s.name(info.Key); n != "" {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names, nil
}

// notFound maps missing-object responses to blobstore.ErrNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobstore.ErrNotFound
	}
	return err
}

type object struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

func (o *object) Size() int64 { return o.size }

func (o *object) Close() error { return nil }

// get returns the inclusive byte range [off, end].
func (o *object) get(ctx context.Context, off, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return nil, err
	}
	return o.client.GetObject(ctx, o.bucket, o.key, opts)
}

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= o.size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), o.size) - 1
	body, err := o.get(ctx, off, end)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := io.ReadFull(body, p[:end-off+1])
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= o.size || length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return o.get(ctx, off, min(off+length, o.size)-1)
}

type upload struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

func (u *upload) Sync() error { return nil }

func (u *upload) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	if err := u.pw.Close(); err != nil {
		return err
	}
	return <-u.done
}
