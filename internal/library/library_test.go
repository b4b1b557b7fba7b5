package library

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/filehandler"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	metrics.SetOutput(io.Discard)
}

type fakeArchive struct {
	files   map[string][]byte
	deleted []string
	upErr   error
}

func (a *fakeArchive) UploadFile(_ context.Context, name, path, _ string) error {
	if a.upErr != nil {
		return a.upErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	a.files[name] = data
	return nil
}

func (a *fakeArchive) DownloadToFile(_ context.Context, name, localPath string) error {
	data, ok := a.files[name]
	if !ok {
		return errors.New("no such key")
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (a *fakeArchive) Delete(_ context.Context, name string) error {
	a.deleted = append(a.deleted, name)
	delete(a.files, name)
	return nil
}

type recordingPublisher struct {
	events []events.VideoEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.VideoEvent) error {
	p.events = append(p.events, e)
	return nil
}

type fakeVectors struct {
	deleted []string
}

func (f *fakeVectors) Add(context.Context, []vectorstore.Document) error { return nil }
func (f *fakeVectors) SimilaritySearch(context.Context, string, int, string) ([]vectorstore.Document, error) {
	return nil, nil
}
func (f *fakeVectors) DeleteByVideo(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

type fixture struct {
	lib     *Library
	archive *fakeArchive
	pub     *recordingPublisher
	vectors *fakeVectors
	catalog *catalog.MemoryStore
}

func newFixture(t *testing.T, o Options) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		archive: &fakeArchive{files: map[string][]byte{}},
		pub:     &recordingPublisher{},
		vectors: &fakeVectors{},
		catalog: catalog.NewMemoryStore(),
	}
	o.OrgDir = filepath.Join(root, "org")
	o.TempDir = filepath.Join(root, "temp")
	o.Catalog = f.catalog
	o.Vectors = f.vectors
	o.Archive = f.archive
	o.Events = f.pub
	f.lib = New(o)
	return f
}

func TestSaveUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	v, isNew, err := f.lib.SaveUpload(ctx, "../../clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "clip.mp4", v.Name)
	assert.Equal(t, filepath.Join(f.lib.OrgDir(), "clip.mp4"), v.Path)
	assert.Equal(t, "video/mp4", v.MIMEType)

	data, err := os.ReadFile(v.Path)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))
	assert.Equal(t, []byte("frames"), f.archive.files["clip.mp4"])
	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TypeVideoUploaded, f.pub.events[0].Type)

	_, isNew, err = f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames v2"))
	require.NoError(t, err)
	assert.False(t, isNew, "second upload of the same name is not new")
	data, _ = os.ReadFile(v.Path)
	assert.Equal(t, "frames v2", string(data))
	assert.Len(t, f.pub.events, 1)
}

func TestSaveUploadRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MaxUploadBytes: 4})

	_, _, err := f.lib.SaveUpload(ctx, "notes.txt", strings.NewReader("x"))
	assert.Error(t, err)

	_, _, err = f.lib.SaveUpload(ctx, "big.mp4", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.NoFileExists(t, filepath.Join(f.lib.OrgDir(), "big.mp4"))

	names, _ := f.catalog.Names(ctx)
	assert.Empty(t, names)

	entries, _ := os.ReadDir(f.lib.OrgDir())
	assert.Empty(t, entries, "no temporary upload files are left behind")
}

func TestSaveUploadArchiveFailureKeepsLocalCopy(t *testing.T) {
	f := newFixture(t, Options{})
	f.archive.upErr = errors.New("s3 down")

	v, isNew, err := f.lib.SaveUpload(context.Background(), "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.FileExists(t, v.Path)
}

func TestResolveRestoresFromArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v, _, err := f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(v.Path))
	got, err := f.lib.Resolve(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.FileExists(t, got.Path)

	_, err = f.lib.Resolve(ctx, "missing.mp4")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestResolveWithoutArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.lib.archive = nil
	v, _, err := f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(v.Path))

	_, err = f.lib.Resolve(ctx, "clip.mp4")
	assert.ErrorIs(t, err, filehandler.ErrNotFound)
}

func TestTrim(t *testing.T) {
	ctx := context.Background()
	var gotIn, gotOut string
	var gotStart, gotEnd time.Duration
	f := newFixture(t, Options{Trim: func(_ context.Context, in, out string, start, end time.Duration) error {
		gotIn, gotOut, gotStart, gotEnd = in, out, start, end
		return os.WriteFile(out, []byte("cut"), 0o644)
	}})
	f.lib.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	v, _, err := f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)

	out, err := f.lib.Trim(ctx, "clip.mp4", 10*time.Second, 25*time.Second)
	require.NoError(t, err)
	assert.Equal(t, v.Path, gotIn)
	assert.Equal(t, out, gotOut)
	assert.Equal(t, 10*time.Second, gotStart)
	assert.Equal(t, 25*time.Second, gotEnd)
	assert.Equal(t, f.lib.TempDir(), filepath.Dir(out))
	assert.True(t, strings.HasPrefix(filepath.Base(out), "1700000000_"))

	created, ok := TempCreatedAt(out)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_000), created.Unix())
}

func TestDuration(t *testing.T) {
	f := newFixture(t, Options{Inspect: func(context.Context, string) (*filehandler.VideoInfo, error) {
		return &filehandler.VideoInfo{Duration: 95 * time.Second}, nil
	}})
	d, err := f.lib.Duration(context.Background(), "x.mp4")
	require.NoError(t, err)
	assert.Equal(t, 95*time.Second, d)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	v, _, err := f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)

	ok, err := f.lib.Delete(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, v.Path)
	assert.Equal(t, []string{"clip.mp4"}, f.vectors.deleted)
	assert.Equal(t, []string{"clip.mp4"}, f.archive.deleted)
	rec, _ := f.catalog.GetByName(ctx, "clip.mp4")
	assert.Nil(t, rec)
	assert.Equal(t, events.TypeVideoDeleted, f.pub.events[len(f.pub.events)-1].Type)

	ok, err = f.lib.Delete(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTempCreatedAt(t *testing.T) {
	name := TempName(time.Unix(42, 0))
	assert.Regexp(t, `^42_[0-9a-f]{32}\.mp4$`, name)

	for _, bad := range []string{"clip.mp4", "abc_def.mp4", "0_x.mp4", "-5_x.mp4"} {
		_, ok := TempCreatedAt(bad)
		assert.False(t, ok, bad)
	}
}

// scanningCatalog records which videos were visible in the org directory
// when each record was added.
type scanningCatalog struct {
	*catalog.MemoryStore
	dir     string
	visible [][]filehandler.VideoEntry
}

func (c *scanningCatalog) Add(ctx context.Context, v catalog.Video) (bool, error) {
	entries, err := filehandler.ScanVideos(c.dir)
	if err != nil {
		return false, err
	}
	c.visible = append(c.visible, entries)
	return c.MemoryStore.Add(ctx, v)
}

func TestSaveUploadRecordsBeforeFileAppears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	cat := &scanningCatalog{MemoryStore: f.catalog, dir: f.lib.OrgDir()}
	f.lib.catalog = cat

	v, isNew, err := f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.FileExists(t, v.Path)

	require.Len(t, cat.visible, 1)
	assert.Empty(t, cat.visible[0], "no video file exists without its record")

	entries, _ := os.ReadDir(f.lib.OrgDir())
	require.Len(t, entries, 1, "the temporary upload file is gone")
	assert.Equal(t, "clip.mp4", entries[0].Name())
}

func TestClaimIndexing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, _, err := f.lib.SaveUpload(ctx, "clip.mp4", strings.NewReader("frames"))
	require.NoError(t, err)

	ok, err := f.lib.ClaimIndexing(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.lib.ClaimIndexing(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.False(t, ok, "the second claim loses")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	f.lib.ReleaseIndexing(cancelled, "clip.mp4")
	rec, _ := f.catalog.GetByName(ctx, "clip.mp4")
	assert.False(t, rec.Summarized)

	ok, err = f.lib.ClaimIndexing(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
}
