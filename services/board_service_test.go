package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bbsboard/models"
	"github.com/cppla/bbsboard/store"
	"github.com/cppla/bbsboard/store/storetest"
)

const (
	alice = "Bearer alice"
	bob   = "Bearer bob"
)

type identifierFunc func(string) (uint, error)

func (f identifierFunc) Extract(authorization string) (uint, error) { return f(authorization) }

var testIdentity = identifierFunc(func(h string) (uint, error) {
	switch h {
	case alice:
		return 1, nil
	case bob:
		return 2, nil
	}
	return 0, fmt.Errorf("%w: unknown token", ErrUnauthenticated)
})

// failingStore lets a test break single store methods.
type failingStore struct {
	BoardStore
	createErr error
	updateErr error
	// afterList runs once the list has been read, before it is returned
	afterList func()
}

func (f *failingStore) List(ctx context.Context, category int) ([]models.Board, error) {
	boards, err := f.BoardStore.List(ctx, category)
	if f.afterList != nil {
		hook := f.afterList
		f.afterList = nil
		hook()
	}
	return boards, err
}

func (f *failingStore) Create(ctx context.Context, b *models.Board) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.BoardStore.Create(ctx, b)
}

func (f *failingStore) Update(ctx context.Context, b *models.Board, expectedVersion int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.BoardStore.Update(ctx, b, expectedVersion)
}

// recordingCache mirrors the generation rule of the redis list cache.
type recordingCache struct {
	lists       map[int][]models.Board
	generations map[int]int64
	invalidated []int
}

func (c *recordingCache) Get(ctx context.Context, category int) ([]models.Board, bool) {
	b, ok := c.lists[category]
	return b, ok
}

func (c *recordingCache) Generation(ctx context.Context, category int) (int64, bool) {
	return c.generations[category], true
}

func (c *recordingCache) Set(ctx context.Context, category int, generation int64, boards []models.Board) {
	if c.generations[category] != generation {
		return
	}
	c.lists[category] = boards
}

func (c *recordingCache) Invalidate(ctx context.Context, categories ...int) {
	for _, cat := range categories {
		delete(c.lists, cat)
		c.generations[cat]++
	}
	c.invalidated = append(c.invalidated, categories...)
}

type fixture struct {
	svc     *BoardService
	store   *failingStore
	storage *memStorage
	cache   *recordingCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store:   &failingStore{BoardStore: store.NewBoardStore(storetest.Open(t))},
		storage: newMemStorage(),
		cache:   &recordingCache{lists: map[int][]models.Board{}, generations: map[int]int64{}},
	}
	fx.svc = NewBoardService(
		testIdentity,
		fx.store,
		NewUploader(fx.storage, time.Second, 2, nil),
		fx.cache,
		BoardOptions{Bucket: "bucket", PathPrefix: "board/"},
		nil,
	)
	return fx
}

func (fx *fixture) add(t *testing.T, category int, title, auth string, files ...FileUpload) *models.Board {
	t.Helper()
	b, err := fx.svc.Add(context.Background(), category, &models.Board{Title: title, Content: title + " body"}, files, auth)
	require.NoError(t, err)
	return b
}

func TestAddAssignsWriterFromIdentity(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	draft := &models.Board{
		No:        77,
		Title:     "hello",
		Content:   "world",
		WriterNo:  2,
		Writer:    models.Member{No: 2},
		ViewCount: 40,
	}
	created, err := fx.svc.Add(ctx, models.CategoryGeneral, draft, nil, alice)
	require.NoError(t, err)
	assert.NotZero(t, created.No)
	assert.NotEqual(t, uint(77), created.No)
	assert.Equal(t, uint(1), created.WriterNo)
	assert.Equal(t, uint(1), created.Writer.No)
	assert.Zero(t, created.ViewCount)
	assert.Empty(t, created.AttachedFiles)

	stored, err := fx.store.Get(ctx, created.No)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.WriterNo)
	assert.Equal(t, models.CategoryGeneral, stored.Category)
	assert.Equal(t, 1, stored.Version)
}

func TestAddRequiresIdentity(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Add(context.Background(), 1, &models.Board{Title: "t"}, []FileUpload{upload("a.txt", "a")}, "Bearer nobody")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, fx.storage.count())

	boards, err := fx.store.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, boards)
}

func TestAddSkipsEmptyFilesAndRoundTripsReferences(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	created := fx.add(t, 1, "with files", alice,
		upload("a.txt", "alpha"), upload("blank.txt", ""), upload("b.txt", "beta"))
	require.Len(t, created.AttachedFiles, 2)

	got, err := fx.svc.Detail(ctx, 1, created.No)
	require.NoError(t, err)
	require.Len(t, got.AttachedFiles, 2)
	for i := range created.AttachedFiles {
		assert.Equal(t, created.AttachedFiles[i].FilePath, got.AttachedFiles[i].FilePath)
		assert.Equal(t, created.AttachedFiles[i].OriginalName, got.AttachedFiles[i].OriginalName)
		assert.True(t, fx.storage.has("bucket", got.AttachedFiles[i].ObjectKey))
	}
}

func TestAddUploadFailureStoresNothing(t *testing.T) {
	fx := newFixture(t)
	fx.storage.PutFunc = func(ctx context.Context, bucket, key string, body io.ReadSeeker, contentType string) (string, error) {
		return "", errors.New("503")
	}

	_, err := fx.svc.Add(context.Background(), 1, &models.Board{Title: "t"}, []FileUpload{upload("a.txt", "a")}, alice)
	assert.ErrorIs(t, err, ErrUpload)

	boards, err := fx.store.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, boards)
}

func TestAddStoreFailureDiscardsUploads(t *testing.T) {
	fx := newFixture(t)
	fx.store.createErr = errors.New("disk full")

	_, err := fx.svc.Add(context.Background(), 1, &models.Board{Title: "t"},
		[]FileUpload{upload("a.txt", "a"), upload("b.txt", "b")}, alice)
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.NotErrorIs(t, err, ErrUpload)
	assert.Zero(t, fx.storage.count())
	assert.Len(t, fx.storage.deleted, 2)
}

func TestDetailCountsEveryView(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "popular", alice)

	const views = 5
	for i := 1; i <= views; i++ {
		b, err := fx.svc.Detail(ctx, 1, created.No)
		require.NoError(t, err)
		assert.Equal(t, i, b.ViewCount)
	}

	stored, err := fx.store.Get(ctx, created.No)
	require.NoError(t, err)
	assert.Equal(t, views, stored.ViewCount)
}

func TestDetailNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Detail(context.Background(), 1, 999)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.True(t, IsRejection(err))
}

func TestListFiltersCategoryAndUsesCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	g1 := fx.add(t, models.CategoryGeneral, "g1", alice)
	fx.add(t, models.CategoryIntroduction, "i1", bob)
	g2 := fx.add(t, models.CategoryGeneral, "g2", bob)

	boards, err := fx.svc.List(ctx, models.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	assert.Equal(t, g2.No, boards[0].No)
	assert.Equal(t, g1.No, boards[1].No)
	for _, b := range boards {
		assert.Equal(t, models.CategoryGeneral, b.Category)
	}
	assert.Len(t, fx.cache.lists[models.CategoryGeneral], 2)

	fx.cache.lists[models.CategoryGeneral] = []models.Board{{No: 4242}}
	cached, err := fx.svc.List(ctx, models.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, uint(4242), cached[0].No)

	empty, err := fx.svc.List(ctx, 9)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestAddInvalidatesListCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	fx.add(t, 1, "new", alice)

	boards, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, boards, 1)
	assert.Contains(t, fx.cache.invalidated, 1)
}

func TestListReflectsViewsCountedByDetail(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "watched", alice)

	boards, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Zero(t, boards[0].ViewCount)

	const views = 3
	for i := 0; i < views; i++ {
		_, err := fx.svc.Detail(ctx, 1, created.No)
		require.NoError(t, err)
	}

	boards, err = fx.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, views, boards[0].ViewCount)
}

func TestListDoesNotCacheListSupersededByConcurrentAdd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// a post is committed after List read the store but before it caches
	fx.store.afterList = func() { fx.add(t, 1, "late", bob) }
	boards, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, boards)
	assert.NotContains(t, fx.cache.lists, 1)

	boards, err = fx.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "late", boards[0].Title)
}

func TestListDoesNotCacheListSupersededByConcurrentDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "doomed", alice)

	fx.store.afterList = func() { require.NoError(t, fx.svc.Delete(ctx, 1, created.No, alice)) }
	boards, err := fx.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, boards, 1)

	boards, err = fx.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, boards)
}

func TestIdentityFromContextIsReused(t *testing.T) {
	fx := newFixture(t)
	calls := 0
	fx.svc.identity = identifierFunc(func(h string) (uint, error) {
		calls++
		return testIdentity(h)
	})

	ctx := ContextWithIdentity(context.Background(), alice, 1)
	created, err := fx.svc.Add(ctx, 1, &models.Board{Title: "t"}, nil, alice)
	require.NoError(t, err)
	assert.Equal(t, uint(1), created.WriterNo)
	assert.Zero(t, calls)

	// an identity recorded for another header is ignored
	_, err = fx.svc.Add(ctx, 1, &models.Board{Title: "t"}, nil, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUpdateByOwner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "before", alice, upload("old.txt", "old"))
	oldKey := created.AttachedFiles[0].ObjectKey

	updated, err := fx.svc.Update(ctx, 2, created.No,
		&models.Board{Title: "after", Content: "new body", WriterNo: 2},
		[]FileUpload{upload("new.txt", "new"), upload("none", "")}, alice)
	require.NoError(t, err)
	assert.Equal(t, created.No, updated.No)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, 2, updated.Category)
	assert.Equal(t, uint(1), updated.WriterNo)
	assert.Equal(t, 2, updated.Version)
	require.Len(t, updated.AttachedFiles, 1)
	assert.Equal(t, "new.txt", updated.AttachedFiles[0].OriginalName)

	stored, err := fx.store.Get(ctx, created.No)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Title)
	assert.Equal(t, "new body", stored.Content)
	assert.Equal(t, uint(1), stored.WriterNo)
	// earlier attachments stay until deleted explicitly
	assert.Len(t, stored.AttachedFiles, 2)
	assert.True(t, fx.storage.has("bucket", oldKey))
	assert.Subset(t, fx.cache.invalidated, []int{1, 2})
}

func TestUpdateAndDeleteDeniedForOthers(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "mine", alice)

	_, err := fx.svc.Update(ctx, 1, created.No, &models.Board{Title: "hijack"}, []FileUpload{upload("x", "x")}, bob)
	assert.ErrorIs(t, err, ErrUpdateDenied)
	assert.Zero(t, fx.storage.count())

	err = fx.svc.Delete(ctx, 1, created.No, bob)
	assert.ErrorIs(t, err, ErrDeleteDenied)

	stored, err := fx.store.Get(ctx, created.No)
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Title)
}

func TestUpdateMissingPostLooksLikeDenied(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Update(context.Background(), 1, 404, &models.Board{Title: "t"}, nil, alice)
	assert.ErrorIs(t, err, ErrUpdateDenied)
}

func TestUpdateRejectsMismatchedDraftNumber(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	mine := fx.add(t, 1, "mine", alice)
	other := fx.add(t, 1, "also mine", alice)

	_, err := fx.svc.Update(ctx, 1, mine.No, &models.Board{No: other.No, Title: "t"}, nil, alice)
	assert.ErrorIs(t, err, ErrUpdateDenied)

	_, err = fx.svc.Update(ctx, 1, mine.No, &models.Board{No: mine.No, Title: "t"}, nil, alice)
	assert.NoError(t, err)
}

func TestUpdateRequiresIdentity(t *testing.T) {
	fx := newFixture(t)
	created := fx.add(t, 1, "mine", alice)

	_, err := fx.svc.Update(context.Background(), 1, created.No, &models.Board{Title: "t"}, nil, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestUpdateConflictDiscardsUploads(t *testing.T) {
	fx := newFixture(t)
	created := fx.add(t, 1, "mine", alice)
	fx.store.updateErr = store.ErrVersionConflict

	_, err := fx.svc.Update(context.Background(), 1, created.No, &models.Board{Title: "t"},
		[]FileUpload{upload("a.txt", "a")}, alice)
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, IsRejection(err))
	assert.Zero(t, fx.storage.count())
}

func TestUpdateStoreFailureDiscardsUploads(t *testing.T) {
	fx := newFixture(t)
	created := fx.add(t, 1, "mine", alice)
	fx.store.updateErr = errors.New("connection reset")

	_, err := fx.svc.Update(context.Background(), 1, created.No, &models.Board{Title: "t"},
		[]FileUpload{upload("a.txt", "a")}, alice)
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.Zero(t, fx.storage.count())
}

func TestDeleteRemovesPostAndBlobs(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "bye", alice, upload("a.txt", "a"), upload("b.txt", "b"))
	require.Equal(t, 2, fx.storage.count())

	require.NoError(t, fx.svc.Delete(ctx, 1, created.No, alice))
	assert.Zero(t, fx.storage.count())

	_, err := fx.store.Get(ctx, created.No)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = fx.store.GetAttachedFile(ctx, created.AttachedFiles[0].No)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// already gone
	err = fx.svc.Delete(ctx, 1, created.No, alice)
	assert.ErrorIs(t, err, ErrDeleteDenied)
	err = fx.svc.Delete(ctx, 1, 12345, alice)
	assert.ErrorIs(t, err, ErrDeleteDenied)
}

func TestDeleteAttachment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.add(t, 1, "files", alice, upload("a.txt", "a"), upload("b.txt", "b"))
	target := created.AttachedFiles[0]

	err := fx.svc.DeleteAttachment(ctx, 1, created.No, target.No, bob)
	assert.ErrorIs(t, err, ErrAttachmentDenied)

	require.NoError(t, fx.svc.DeleteAttachment(ctx, 1, created.No, target.No, alice))
	assert.False(t, fx.storage.has("bucket", target.ObjectKey))
	assert.True(t, fx.storage.has("bucket", created.AttachedFiles[1].ObjectKey))

	stored, err := fx.store.Get(ctx, created.No)
	require.NoError(t, err)
	require.Len(t, stored.AttachedFiles, 1)
	assert.Equal(t, created.AttachedFiles[1].No, stored.AttachedFiles[0].No)

	err = fx.svc.DeleteAttachment(ctx, 1, created.No, target.No, alice)
	assert.ErrorIs(t, err, ErrAttachmentMismatch)
}

func TestDeleteAttachmentRejectsOtherPostsFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.add(t, 1, "first", alice, upload("a.txt", "a"))
	second := fx.add(t, 1, "second", alice, upload("b.txt", "b"))

	// same owner, wrong post
	err := fx.svc.DeleteAttachment(ctx, 1, first.No, second.AttachedFiles[0].No, alice)
	assert.ErrorIs(t, err, ErrAttachmentMismatch)

	_, err = fx.store.GetAttachedFile(ctx, second.AttachedFiles[0].No)
	assert.NoError(t, err)
	assert.True(t, fx.storage.has("bucket", second.AttachedFiles[0].ObjectKey))
}

func TestDeleteAttachmentRequiresIdentity(t *testing.T) {
	fx := newFixture(t)
	created := fx.add(t, 1, "files", alice, upload("a.txt", "a"))

	err := fx.svc.DeleteAttachment(context.Background(), 1, created.No, created.AttachedFiles[0].No, "Bearer")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
