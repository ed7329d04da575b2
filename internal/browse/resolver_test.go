package browse

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crs4/moodle.omero-repository/internal/config"
	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/models"
	"github.com/crs4/moodle.omero-repository/internal/router"
)

// fakeRemote serves canned entities without touching the network.
type fakeRemote struct {
	projects  models.EntityList
	tags      models.EntityList
	tagImages models.EntityList
	hits      models.EntityList
	entities  map[int64]*models.Entity
	detail    *models.Entity
}

func (f *fakeRemote) FetchEntity(_ context.Context, desc router.Descriptor, _ models.Credentials) (*models.Entity, error) {
	if e, ok := f.entities[desc.ID]; ok {
		return e, nil
	}
	return &models.Entity{ID: desc.ID}, nil
}

func (f *fakeRemote) ListProjects(context.Context, models.Credentials) (models.EntityList, error) {
	return f.projects, nil
}

func (f *fakeRemote) ListDatasets(context.Context, int64, models.Credentials) (models.EntityList, error) {
	return nil, nil
}

func (f *fakeRemote) ListImages(context.Context, int64, models.Credentials) (models.EntityList, error) {
	return nil, nil
}

func (f *fakeRemote) ListTags(context.Context, models.Credentials) (models.EntityList, error) {
	return f.tags, nil
}

func (f *fakeRemote) ListTagImages(context.Context, int64, models.Credentials) (models.EntityList, error) {
	return f.tagImages, nil
}

func (f *fakeRemote) Search(context.Context, string, models.Credentials) (models.EntityList, error) {
	return f.hits, nil
}

func (f *fakeRemote) FetchImageDetail(_ context.Context, id int64, _ models.Credentials) (*models.Entity, error) {
	if f.detail != nil {
		return f.detail, nil
	}
	return &models.Entity{ID: id, Type: "Image"}, nil
}

func newTestResolver(remote *fakeRemote) *Resolver {
	rtr := router.New(router.DirectDialect{})
	return NewResolver(remote, rtr, NewMemorySessionStore(), config.DefaultBlacklist, logging.New(io.Discard))
}

func TestRootListing(t *testing.T) {
	r := newTestResolver(&fakeRemote{})

	listing, err := r.List(context.Background(), "s1", "/", 0, "", models.Credentials{})
	require.NoError(t, err)

	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "Projects", listing.Entries[0].Title)
	assert.Equal(t, "/projects", listing.Entries[0].Path)
	assert.Equal(t, "Tags", listing.Entries[1].Title)
	assert.Equal(t, "/tags", listing.Entries[1].Path)
	assert.True(t, listing.Entries[0].IsContainer)
	assert.False(t, listing.IsSearchResult)
	require.Len(t, listing.Breadcrumb, 1)
	assert.Equal(t, "/", listing.Breadcrumb[0].Path)
}

// Blacklisting is exact-match: "TEST" disappears, "TEST2" stays.
func TestProjectListingBlacklist(t *testing.T) {
	r := newTestResolver(&fakeRemote{projects: models.EntityList{
		{ID: 1, Name: "Visible"},
		{ID: 2, Name: "TEST"},
		{ID: 3, Name: "TEST2"},
		{ID: 4, Name: "Melanomi e nevi"},
	}})

	listing, err := r.List(context.Background(), "s1", "/projects", 0, "", models.Credentials{})
	require.NoError(t, err)

	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "Visible [id:1]", listing.Entries[0].Title)
	assert.Equal(t, "/proj/1", listing.Entries[0].Path)
	assert.Equal(t, "TEST2 [id:3]", listing.Entries[1].Title)
}

// Drilling into a project lists its datasets; the entry path classifies back
// to the dataset it names, even when the request path carries a suffix.
func TestProjectDetailListsDatasets(t *testing.T) {
	rtr := router.New(router.DirectDialect{})
	r := newTestResolver(&fakeRemote{entities: map[int64]*models.Entity{
		7: {ID: 7, Type: "Project", Name: "P", Datasets: []models.Entity{
			{ID: 9, Name: "D9"},
			{ID: 10, Name: "TEST"},
		}},
	}})

	listing, err := r.List(context.Background(), "s1", "/proj/7/detail", 0, "", models.Credentials{})
	require.NoError(t, err)

	require.Len(t, listing.Entries, 1)
	assert.Equal(t, "/dataset/9", listing.Entries[0].Path)
	assert.True(t, listing.Entries[0].IsContainer)
	assert.Equal(t, router.Descriptor{Kind: router.KindDataset, ID: 9},
		rtr.Classify(listing.Entries[0].Path))
}

// Multi-series datasets show only their first series row; the entry path
// classifies back to the same dataset's image.
func TestDatasetListingFirstSeriesOnly(t *testing.T) {
	remote := &fakeRemote{entities: map[int64]*models.Entity{
		9: {ID: 9, Type: "Dataset", Name: "D", Images: []models.Entity{
			{ID: 100, Name: "slide.ndpi - Series 1"},
			{ID: 101, Name: "slide.ndpi - Series 2"},
			{ID: 102, Name: "other.ndpi - Series 1"},
			{ID: 103, Name: "plain.tiff"},
		}},
	}}
	r := newTestResolver(remote)

	listing, err := r.List(context.Background(), "s1", "/dataset/9", 0, "", models.Credentials{})
	require.NoError(t, err)

	require.Len(t, listing.Entries, 2)
	assert.Equal(t, int64(100), listing.Entries[0].ID)
	assert.Equal(t, int64(102), listing.Entries[1].ID)
}

// Tag listings carry every annotated image; the series filter applies to
// dataset drill-down only.
func TestTagListingKeepsAllSeries(t *testing.T) {
	r := newTestResolver(&fakeRemote{tagImages: models.EntityList{
		{ID: 100, Name: "slide.ndpi - Series 1"},
		{ID: 101, Name: "slide.ndpi - Series 2"},
	}})

	listing, err := r.List(context.Background(), "s1", "/tag/5", 0, "", models.Credentials{})
	require.NoError(t, err)
	assert.Len(t, listing.Entries, 2)
}

func TestTagRootListing(t *testing.T) {
	r := newTestResolver(&fakeRemote{tags: models.EntityList{
		{ID: 5, Value: "melanoma", Description: "skin lesions"},
		{ID: 6, Value: "nevus"},
	}})

	listing, err := r.List(context.Background(), "s1", "/tags", 0, "", models.Credentials{})
	require.NoError(t, err)

	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "melanoma: skin lesions [id:5]", listing.Entries[0].Title)
	assert.Equal(t, "/tag/5", listing.Entries[0].Path)
	assert.Equal(t, "nevus [id:6]", listing.Entries[1].Title)
}

func TestImageEntryMetadata(t *testing.T) {
	remote := &fakeRemote{entities: map[int64]*models.Entity{
		100: {ID: 100, Type: "Image", Name: "slide"},
	}}
	remote.detail = &models.Entity{
		ID: 100, Type: "Image", Name: "slide",
		Meta: &models.ImageMeta{ImageAuthor: "rossi", ImageTimestamp: 1700000000},
	}
	r := newTestResolver(remote)

	listing, err := r.List(context.Background(), "s1", "/image/100", 0, "", models.Credentials{})
	require.NoError(t, err)

	require.Len(t, listing.Entries, 1)
	entry := listing.Entries[0]
	assert.Equal(t, "slide [id:100]", entry.Title)
	assert.Equal(t, "100", entry.Source)
	assert.Equal(t, "rossi", entry.Author)
	assert.Equal(t, "/repository/thumbnail?id=100&lastUpdate=1700000000", entry.ThumbnailURL)
}

func TestInvalidPathRendersNothing(t *testing.T) {
	r := newTestResolver(&fakeRemote{})

	listing, err := r.List(context.Background(), "s1", "/bogus/path", 0, "", models.Credentials{})
	require.NoError(t, err)
	assert.Empty(t, listing.Entries)
}

func TestSearchListing(t *testing.T) {
	r := newTestResolver(&fakeRemote{hits: models.EntityList{
		{ID: 100, Name: "match one"},
		{ID: 101, Name: "TEST"},
	}})

	listing, err := r.List(context.Background(), "s1", "/anything", 0, "melanoma", models.Credentials{})
	require.NoError(t, err)

	assert.True(t, listing.IsSearchResult)
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, int64(100), listing.Entries[0].ID)

	require.Len(t, listing.Breadcrumb, 3)
	assert.Equal(t, "melanoma", listing.Breadcrumb[2].Label)
}

// Annotation-query paths run the same search flow as explicit search text,
// in both URL grammars.
func TestAnnotationQueryPathSearches(t *testing.T) {
	r := newTestResolver(&fakeRemote{hits: models.EntityList{
		{ID: 100, Name: "match one"},
	}})

	for _, path := range []string{
		"/annotations?query=melanoma",
		"/find/annotations?query=melanoma",
		"/annotations/melanoma",
	} {
		listing, err := r.List(context.Background(), "s1", path, 0, "", models.Credentials{})
		require.NoError(t, err, "path %q", path)

		assert.True(t, listing.IsSearchResult, "path %q", path)
		require.Len(t, listing.Entries, 1, "path %q", path)
		require.Len(t, listing.Breadcrumb, 3, "path %q", path)
		assert.Equal(t, "melanoma", listing.Breadcrumb[2].Label, "path %q", path)
	}
}

func TestAnnotationQueryPathWithoutQuery(t *testing.T) {
	r := newTestResolver(&fakeRemote{hits: models.EntityList{{ID: 1, Name: "hit"}}})

	listing, err := r.List(context.Background(), "s1", "/annotations", 0, "", models.Credentials{})
	require.NoError(t, err)
	assert.False(t, listing.IsSearchResult)
	assert.Empty(t, listing.Entries)
}

// Visiting a project remembers it: the dataset breadcrumb gains the project
// ancestor. A fresh session omits it.
func TestBreadcrumbRemembersProject(t *testing.T) {
	remote := &fakeRemote{entities: map[int64]*models.Entity{
		4: {ID: 4, Type: "Project", Name: "P"},
		9: {ID: 9, Type: "Dataset", Name: "D"},
	}}
	r := newTestResolver(remote)
	ctx := context.Background()

	_, err := r.List(ctx, "visited", "/proj/4", 0, "", models.Credentials{})
	require.NoError(t, err)

	listing, err := r.List(ctx, "visited", "/dataset/9", 0, "", models.Credentials{})
	require.NoError(t, err)
	labels := crumbLabels(listing.Breadcrumb)
	assert.Equal(t, []string{"/", "Projects", "Project [4]", "Dataset [9]"}, labels)

	// A session that never visited the project renders without the ancestor.
	listing, err = r.List(ctx, "fresh", "/dataset/9", 0, "", models.Credentials{})
	require.NoError(t, err)
	labels = crumbLabels(listing.Breadcrumb)
	assert.Equal(t, []string{"/", "Projects", "Dataset [9]"}, labels)
}

// Returning to a root level forgets the remembered ancestors.
func TestBreadcrumbResetAtRoot(t *testing.T) {
	remote := &fakeRemote{entities: map[int64]*models.Entity{
		4: {ID: 4, Type: "Project", Name: "P"},
		9: {ID: 9, Type: "Dataset", Name: "D"},
	}}
	r := newTestResolver(remote)
	ctx := context.Background()

	_, err := r.List(ctx, "s1", "/proj/4", 0, "", models.Credentials{})
	require.NoError(t, err)
	_, err = r.List(ctx, "s1", "/projects", 0, "", models.Credentials{})
	require.NoError(t, err)

	listing, err := r.List(ctx, "s1", "/dataset/9", 0, "", models.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "Projects", "Dataset [9]"}, crumbLabels(listing.Breadcrumb))
}

func TestSessionsAreIndependent(t *testing.T) {
	s := NewMemorySessionStore()
	s.Set("a", sessionKeyProject, "/proj/1")
	s.Set("b", sessionKeyProject, "/proj/2")

	assert.Equal(t, "/proj/1", s.Get("a", sessionKeyProject))
	assert.Equal(t, "/proj/2", s.Get("b", sessionKeyProject))
	assert.Equal(t, "", s.Get("c", sessionKeyProject))
}

func crumbLabels(crumbs []Crumb) []string {
	out := make([]string, len(crumbs))
	for i, c := range crumbs {
		out[i] = c.Label
	}
	return out
}
