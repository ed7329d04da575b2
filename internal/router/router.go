// Package router maps virtual browse paths onto typed request descriptors
// and builds the remote API URLs for each resource kind.
//
// A virtual path is the slash-delimited position in the browse hierarchy the
// host UI navigates ("/", "/projects", "/proj/42", ...). It is not a remote
// URL: the translation to the OMERO server's URL grammar is done by the
// configured Dialect.
package router

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the resource a virtual path addresses.
type Kind int

const (
	KindInvalid Kind = iota
	KindRoot
	KindProjectsRoot
	KindTagsRoot
	KindProject
	KindDataset
	KindImage
	KindTag
	KindAnnotationQuery
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindProjectsRoot:
		return "projects"
	case KindTagsRoot:
		return "tags"
	case KindProject:
		return "project"
	case KindDataset:
		return "dataset"
	case KindImage:
		return "image"
	case KindTag:
		return "tag"
	case KindAnnotationQuery:
		return "annotation-query"
	}
	return "invalid"
}

// Descriptor is the classified form of a virtual path. Value type, immutable.
type Descriptor struct {
	Kind Kind
	ID   int64
}

// Invalid is the sentinel returned for unclassifiable paths. Callers render
// nothing and log at debug level; it is never a hard error.
var Invalid = Descriptor{Kind: KindInvalid}

var idRun = regexp.MustCompile(`\d+`)

// detailPatterns maps a path's leading segment(s) to a kind. Both historical
// URL grammars are accepted on input; built paths use the short form.
var detailPatterns = []struct {
	prefixes []string
	kind     Kind
}{
	{[]string{"/proj/", "/get/project/", "/get_project/"}, KindProject},
	{[]string{"/dataset/", "/get/dataset/", "/get_dataset/"}, KindDataset},
	{[]string{"/image/", "/get/image/", "/get_image/"}, KindImage},
	{[]string{"/tag/", "/get/tag/", "/get_tag/"}, KindTag},
}

// Router classifies virtual paths and delegates remote URL construction to
// its dialect. Stateless; safe for concurrent use.
type Router struct {
	dialect Dialect
}

// New creates a Router bound to the given remote dialect.
func New(d Dialect) *Router {
	return &Router{dialect: d}
}

// Dialect returns the bound remote dialect.
func (r *Router) Dialect() Dialect {
	return r.dialect
}

// Classify maps a virtual path to a Descriptor. Longer patterns win over the
// root pattern; the id is the first digit run in the path. Unrecognized
// paths yield Invalid.
func (r *Router) Classify(path string) Descriptor {
	path = normalize(path)

	switch path {
	case "/":
		return Descriptor{Kind: KindRoot}
	case "/projects":
		return Descriptor{Kind: KindProjectsRoot}
	case "/tags":
		return Descriptor{Kind: KindTagsRoot}
	}

	if strings.HasPrefix(path, "/annotations") || strings.HasPrefix(path, "/find/annotations") {
		return Descriptor{Kind: KindAnnotationQuery}
	}

	for _, p := range detailPatterns {
		for _, prefix := range p.prefixes {
			if !strings.HasPrefix(path, prefix) {
				continue
			}
			if m := idRun.FindString(path[len(prefix)-1:]); m != "" {
				id, err := strconv.ParseInt(m, 10, 64)
				if err != nil {
					return Invalid
				}
				return Descriptor{Kind: p.kind, ID: id}
			}
		}
	}

	return Invalid
}

// ProjectPath returns the virtual path of a project detail listing.
func (r *Router) ProjectPath(id int64) string {
	return "/proj/" + strconv.FormatInt(id, 10)
}

// DatasetPath returns the virtual path of a dataset detail listing.
func (r *Router) DatasetPath(id int64) string {
	return "/dataset/" + strconv.FormatInt(id, 10)
}

// ImagePath returns the virtual path of an image detail entry.
func (r *Router) ImagePath(id int64) string {
	return "/image/" + strconv.FormatInt(id, 10)
}

// TagPath returns the virtual path of a tag detail listing.
func (r *Router) TagPath(id int64) string {
	return "/tag/" + strconv.FormatInt(id, 10)
}

// Path builds the virtual path for a descriptor kind and id. The inverse of
// Classify for every kind that carries an id.
func (r *Router) Path(d Descriptor) string {
	switch d.Kind {
	case KindRoot:
		return "/"
	case KindProjectsRoot:
		return "/projects"
	case KindTagsRoot:
		return "/tags"
	case KindProject:
		return r.ProjectPath(d.ID)
	case KindDataset:
		return r.DatasetPath(d.ID)
	case KindImage:
		return r.ImagePath(d.ID)
	case KindTag:
		return r.TagPath(d.ID)
	}
	return ""
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
