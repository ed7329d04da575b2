package browse

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/metrics"
	"github.com/crs4/moodle.omero-repository/internal/models"
	"github.com/crs4/moodle.omero-repository/internal/router"
)

// Remote is the slice of the API client the resolver consumes.
type Remote interface {
	FetchEntity(ctx context.Context, desc router.Descriptor, creds models.Credentials) (*models.Entity, error)
	ListProjects(ctx context.Context, creds models.Credentials) (models.EntityList, error)
	ListDatasets(ctx context.Context, projectID int64, creds models.Credentials) (models.EntityList, error)
	ListImages(ctx context.Context, datasetID int64, creds models.Credentials) (models.EntityList, error)
	ListTags(ctx context.Context, creds models.Credentials) (models.EntityList, error)
	ListTagImages(ctx context.Context, tagID int64, creds models.Credentials) (models.EntityList, error)
	Search(ctx context.Context, query string, creds models.Credentials) (models.EntityList, error)
	FetchImageDetail(ctx context.Context, imageID int64, creds models.Credentials) (*models.Entity, error)
}

// seriesOne selects the representative row of a multi-series dataset.
// Datasets otherwise show one row per series.
var seriesOne = regexp.MustCompile(`Series\s1`)

// Resolver maps a virtual path (or search) to a Listing.
type Resolver struct {
	remote    Remote
	rtr       *router.Router
	sessions  SessionStore
	blacklist map[string]struct{}
	logger    *logging.Logger
}

// NewResolver wires a resolver. blacklist entries are display names hidden
// from every listing.
func NewResolver(remote Remote, rtr *router.Router, sessions SessionStore, blacklist []string, logger *logging.Logger) *Resolver {
	bl := make(map[string]struct{}, len(blacklist))
	for _, name := range blacklist {
		bl[name] = struct{}{}
	}
	return &Resolver{
		remote:    remote,
		rtr:       rtr,
		sessions:  sessions,
		blacklist: bl,
		logger:    logger.Component("browse"),
	}
}

// List resolves (path, page, searchText) into a Listing. A non-empty
// searchText bypasses path classification entirely. Unclassifiable paths
// produce an empty listing, never an error.
func (r *Resolver) List(ctx context.Context, sessionID, path string, page int, searchText string, creds models.Credentials) (*Listing, error) {
	if searchText != "" {
		return r.searchListing(ctx, sessionID, searchText, creds)
	}

	desc := r.rtr.Classify(path)
	listing := &Listing{
		Entries:    []Entry{},
		Breadcrumb: r.breadcrumb(sessionID, desc, path),
	}

	var err error
	switch desc.Kind {
	case router.KindRoot:
		listing.Entries = r.rootEntries()

	case router.KindProjectsRoot:
		err = r.appendProjects(ctx, listing, creds)

	case router.KindTagsRoot:
		err = r.appendTags(ctx, listing, creds)

	case router.KindTag:
		err = r.appendTagImages(ctx, listing, desc.ID, creds)

	case router.KindProject, router.KindDataset, router.KindImage:
		err = r.appendDetail(ctx, listing, desc, creds)

	case router.KindAnnotationQuery:
		// The query rides in the path itself; an empty one renders nothing.
		if q := annotationQuery(path); q != "" {
			return r.searchListing(ctx, sessionID, q, creds)
		}

	default:
		// Unknown resource: render nothing.
		r.logger.Debug().Str("path", path).Msg("unclassifiable path")
	}

	if err != nil {
		metrics.ListingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ListingsTotal.WithLabelValues("ok").Inc()
	return listing, nil
}

// searchListing runs an annotation query and wraps each hit as an image
// entry. The breadcrumb shows the query text as its last segment.
func (r *Resolver) searchListing(ctx context.Context, sessionID, searchText string, creds models.Credentials) (*Listing, error) {
	hits, err := r.remote.Search(ctx, searchText, creds)
	if err != nil {
		metrics.ListingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	listing := &Listing{
		Entries:        []Entry{},
		IsSearchResult: true,
	}
	for i := range hits {
		hit := &hits[i]
		if r.blacklisted(hit.DisplayName()) {
			continue
		}
		listing.Entries = append(listing.Entries, r.imageEntry(hit))
	}

	r.sessions.Set(sessionID, sessionKeySearchText, searchText)
	listing.Breadcrumb = []Crumb{
		{Label: "/", Path: "/"},
		{Label: "Tags", Path: "/tags"},
		{Label: searchText, Path: "/tag/" + searchText},
	}

	metrics.ListingsTotal.WithLabelValues("search").Inc()
	return listing, nil
}

// rootEntries are the two fixed navigation anchors; no remote call is made.
func (r *Resolver) rootEntries() []Entry {
	return []Entry{
		{Title: "Projects", Path: "/projects", IsContainer: true},
		{Title: "Tags", Path: "/tags", IsContainer: true},
	}
}

func (r *Resolver) appendProjects(ctx context.Context, listing *Listing, creds models.Credentials) error {
	projects, err := r.remote.ListProjects(ctx, creds)
	if err != nil {
		return err
	}
	for i := range projects {
		p := &projects[i]
		if r.blacklisted(p.DisplayName()) {
			continue
		}
		listing.Entries = append(listing.Entries, Entry{
			ID:          p.ID,
			Title:       containerTitle(p),
			Path:        r.rtr.ProjectPath(p.ID),
			IsContainer: true,
		})
	}
	return nil
}

func (r *Resolver) appendTags(ctx context.Context, listing *Listing, creds models.Credentials) error {
	tags, err := r.remote.ListTags(ctx, creds)
	if err != nil {
		return err
	}
	for i := range tags {
		t := &tags[i]
		if r.blacklisted(t.DisplayName()) {
			continue
		}
		listing.Entries = append(listing.Entries, Entry{
			ID:          t.ID,
			Title:       tagTitle(t),
			Path:        r.rtr.TagPath(t.ID),
			IsContainer: true,
		})
	}
	return nil
}

func (r *Resolver) appendTagImages(ctx context.Context, listing *Listing, tagID int64, creds models.Credentials) error {
	images, err := r.remote.ListTagImages(ctx, tagID, creds)
	if err != nil {
		return err
	}
	r.appendImages(listing, images, false)
	return nil
}

// appendDetail resolves the selected entity and branches by its reported
// kind. An unrecognized kind renders nothing; this is not an error.
func (r *Resolver) appendDetail(ctx context.Context, listing *Listing, desc router.Descriptor, creds models.Credentials) error {
	entity, err := r.remote.FetchEntity(ctx, desc, creds)
	if err != nil {
		return err
	}

	switch entity.Type {
	case "Project":
		datasets := models.EntityList(entity.Datasets)
		if len(datasets) == 0 {
			datasets, err = r.remote.ListDatasets(ctx, idOf(entity, desc), creds)
			if err != nil {
				return err
			}
		}
		for i := range datasets {
			d := &datasets[i]
			if r.blacklisted(d.DisplayName()) {
				continue
			}
			listing.Entries = append(listing.Entries, Entry{
				ID:          d.ID,
				Title:       containerTitle(d),
				Path:        r.rtr.DatasetPath(d.ID),
				IsContainer: true,
			})
		}

	case "Dataset":
		images := models.EntityList(entity.Images)
		if len(images) == 0 {
			images, err = r.remote.ListImages(ctx, idOf(entity, desc), creds)
			if err != nil {
				return err
			}
		}
		r.appendImages(listing, images, true)

	case "Image":
		detail, err := r.remote.FetchImageDetail(ctx, idOf(entity, desc), creds)
		if err != nil {
			return err
		}
		listing.Entries = append(listing.Entries, r.imageEntry(detail))

	default:
		r.logger.Debug().Str("type", entity.Type).Int64("id", desc.ID).Msg("unknown resource kind")
	}
	return nil
}

// appendImages shapes raw image entities into entries. With firstSeriesOnly
// set, only names matching the first-series pattern survive. A bad item is
// skipped, never fatal for the page.
func (r *Resolver) appendImages(listing *Listing, images models.EntityList, firstSeriesOnly bool) {
	for i := range images {
		img := &images[i]
		if r.blacklisted(img.DisplayName()) {
			continue
		}
		if firstSeriesOnly && !seriesOne.MatchString(img.DisplayName()) {
			continue
		}
		listing.Entries = append(listing.Entries, r.imageEntry(img))
	}
}

func (r *Resolver) imageEntry(img *models.Entity) Entry {
	entry := Entry{
		ID:     img.ID,
		Title:  containerTitle(img),
		Path:   r.rtr.ImagePath(img.ID),
		Source: strconv.FormatInt(img.ID, 10),
	}
	if img.Meta != nil {
		entry.Author = img.Meta.ImageAuthor
		entry.Timestamp = img.Meta.ImageTimestamp
		entry.ThumbnailURL = ThumbnailPath(img.ID, img.Meta.ImageTimestamp)
	} else {
		entry.ThumbnailURL = ThumbnailPath(img.ID, 0)
	}
	return entry
}

// ThumbnailPath computes the local thumbnail endpoint URL for an image
// revision. The bytes are resolved lazily by that endpoint, never during
// listing.
func ThumbnailPath(imageID, lastUpdate int64) string {
	return fmt.Sprintf("/repository/thumbnail?id=%d&lastUpdate=%d", imageID, lastUpdate)
}

// annotationQuery extracts the search text from an annotation-query path:
// either a ?query= parameter or the trailing path segment.
func annotationQuery(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(path)
	if err != nil {
		return ""
	}
	if q := u.Query().Get("query"); q != "" {
		return q
	}
	trimmed := strings.TrimPrefix(u.Path, "/find")
	trimmed = strings.TrimPrefix(trimmed, "/annotations")
	return strings.Trim(trimmed, "/")
}

func (r *Resolver) blacklisted(name string) bool {
	_, hidden := r.blacklist[name]
	return hidden
}

func containerTitle(e *models.Entity) string {
	return fmt.Sprintf("%s [id:%d]", e.DisplayName(), e.ID)
}

func tagTitle(t *models.Entity) string {
	if t.Description != "" {
		return fmt.Sprintf("%s: %s [id:%d]", t.DisplayName(), t.Description, t.ID)
	}
	return containerTitle(t)
}

func idOf(e *models.Entity, desc router.Descriptor) int64 {
	if e.ID != 0 {
		return e.ID
	}
	return desc.ID
}

// breadcrumb builds the navigation trail for a classified path, remembering
// the selection in the session store so deeper levels can render ancestor
// segments. A fresh session simply omits the ancestor segment.
func (r *Resolver) breadcrumb(sessionID string, desc router.Descriptor, path string) []Crumb {
	root := Crumb{Label: "/", Path: "/"}

	switch desc.Kind {
	case router.KindRoot:
		r.clearSession(sessionID)
		return []Crumb{root}

	case router.KindProjectsRoot:
		r.clearSession(sessionID)
		return []Crumb{root, {Label: "Projects", Path: "/projects"}}

	case router.KindTagsRoot:
		r.clearSession(sessionID)
		return []Crumb{root, {Label: "Tags", Path: "/tags"}}

	case router.KindTag:
		crumbs := []Crumb{root, {Label: "Tags", Path: "/tags"}}
		if q := r.sessions.Get(sessionID, sessionKeySearchText); q != "" {
			crumbs = append(crumbs, Crumb{Label: q, Path: "/tag/" + q})
		}
		crumbs = append(crumbs, Crumb{Label: label("Tag", desc.ID), Path: path})
		r.sessions.Set(sessionID, sessionKeyTag, path)
		r.sessions.Set(sessionID, sessionKeyProject, "")
		r.sessions.Set(sessionID, sessionKeyDataset, "")
		return crumbs

	case router.KindProject:
		crumbs := []Crumb{root, {Label: "Projects", Path: "/projects"}}
		crumbs = append(crumbs, Crumb{Label: label("Project", desc.ID), Path: path})
		r.sessions.Set(sessionID, sessionKeyProject, path)
		return crumbs

	case router.KindDataset:
		crumbs := []Crumb{root, {Label: "Projects", Path: "/projects"}}
		if ancestor := r.sessions.Get(sessionID, sessionKeyProject); ancestor != "" {
			if pdesc := r.rtr.Classify(ancestor); pdesc.Kind == router.KindProject {
				crumbs = append(crumbs, Crumb{Label: label("Project", pdesc.ID), Path: ancestor})
			}
		}
		crumbs = append(crumbs, Crumb{Label: label("Dataset", desc.ID), Path: path})
		r.sessions.Set(sessionID, sessionKeyDataset, path)
		return crumbs

	case router.KindImage:
		crumbs := []Crumb{root, {Label: "Projects", Path: "/projects"}}
		for _, key := range []string{sessionKeyProject, sessionKeyDataset} {
			if ancestor := r.sessions.Get(sessionID, key); ancestor != "" {
				if adesc := r.rtr.Classify(ancestor); adesc.Kind != router.KindInvalid {
					crumbs = append(crumbs, Crumb{
						Label: label(titleFor(adesc.Kind), adesc.ID),
						Path:  ancestor,
					})
				}
			}
		}
		return append(crumbs, Crumb{Label: label("Image", desc.ID), Path: path})
	}

	return []Crumb{root}
}

func (r *Resolver) clearSession(sessionID string) {
	for _, key := range []string{sessionKeyProject, sessionKeyDataset, sessionKeyTag, sessionKeySearchText} {
		r.sessions.Set(sessionID, key, "")
	}
}

func label(kind string, id int64) string {
	return fmt.Sprintf("%s [%d]", kind, id)
}

func titleFor(kind router.Kind) string {
	switch kind {
	case router.KindProject:
		return "Project"
	case router.KindDataset:
		return "Dataset"
	case router.KindTag:
		return "Tag"
	}
	return "Item"
}
