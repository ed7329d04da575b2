package router

import (
	"fmt"
	"net/url"
	"strings"
)

// Dialect builds the remote-server URL for each resource kind. The two
// implementations cover the two incompatible URL grammars the OMERO frontends
// have shipped; which one a deployment speaks is a configuration choice made
// once at construction.
type Dialect interface {
	// Name returns the configured dialect identifier.
	Name() string

	ProjectListURL() string
	ProjectDetailURL(projectID int64) string
	DatasetListURL(projectID int64) string
	DatasetDetailURL(datasetID int64) string
	ImageListURL(datasetID int64) string
	ImageDetailURL(imageID int64) string
	TagListURL() string
	TagDetailURL(tagID int64) string
	AnnotationQueryURL(query string) string
	ThumbnailURL(imageID int64, height int) string

	// FileURL and ShareLinkURL address externally referenced files by their
	// filesystem-like remote path.
	FileURL(remotePath string) string
	ShareLinkURL(remotePath string) string
}

// RequestURL maps a classified descriptor to the remote URL serving it.
// Root-kind descriptors have no remote counterpart and return "".
func RequestURL(d Dialect, desc Descriptor) string {
	switch desc.Kind {
	case KindProjectsRoot:
		return d.ProjectListURL()
	case KindTagsRoot:
		return d.TagListURL()
	case KindProject:
		return d.ProjectDetailURL(desc.ID)
	case KindDataset:
		return d.DatasetDetailURL(desc.ID)
	case KindImage:
		return d.ImageDetailURL(desc.ID)
	case KindTag:
		return d.TagDetailURL(desc.ID)
	}
	return ""
}

// DirectDialect speaks the ome_seadragon URL grammar
// (/ome_seadragon/get/project/{id}?datasets=true).
type DirectDialect struct{}

// Name implements Dialect.
func (DirectDialect) Name() string { return "direct" }

func (DirectDialect) ProjectListURL() string {
	return "/ome_seadragon/get/projects"
}

func (DirectDialect) ProjectDetailURL(projectID int64) string {
	return fmt.Sprintf("/ome_seadragon/get/project/%d?datasets=true", projectID)
}

func (d DirectDialect) DatasetListURL(projectID int64) string {
	// Dataset children ride on the project detail response in this grammar.
	return d.ProjectDetailURL(projectID)
}

func (DirectDialect) DatasetDetailURL(datasetID int64) string {
	return fmt.Sprintf("/ome_seadragon/get/dataset/%d?images=true", datasetID)
}

func (d DirectDialect) ImageListURL(datasetID int64) string {
	return d.DatasetDetailURL(datasetID)
}

func (DirectDialect) ImageDetailURL(imageID int64) string {
	return fmt.Sprintf("/ome_seadragon/get/image/%d?rois=false", imageID)
}

func (DirectDialect) TagListURL() string {
	return "/ome_seadragon/get/annotations"
}

func (DirectDialect) TagDetailURL(tagID int64) string {
	return fmt.Sprintf("/ome_seadragon/get/tag/%d?images=true", tagID)
}

func (DirectDialect) AnnotationQueryURL(query string) string {
	return "/ome_seadragon/find/annotations?query=" + url.QueryEscape(query)
}

func (DirectDialect) ThumbnailURL(imageID int64, height int) string {
	return fmt.Sprintf("/ome_seadragon/deepzoom/get/thumbnail/%d.dzi?size=%d", imageID, height)
}

func (DirectDialect) FileURL(remotePath string) string {
	return "/files/omero" + EscapePath(remotePath)
}

func (DirectDialect) ShareLinkURL(remotePath string) string {
	return "/shares/omero" + EscapePath(remotePath)
}

// GatewayDialect speaks the REST gateway grammar (/api/projects/{id}/datasets).
type GatewayDialect struct{}

// Name implements Dialect.
func (GatewayDialect) Name() string { return "gateway" }

func (GatewayDialect) ProjectListURL() string {
	return "/api/projects"
}

func (GatewayDialect) ProjectDetailURL(projectID int64) string {
	return fmt.Sprintf("/api/projects/%d/datasets", projectID)
}

func (d GatewayDialect) DatasetListURL(projectID int64) string {
	return d.ProjectDetailURL(projectID)
}

func (GatewayDialect) DatasetDetailURL(datasetID int64) string {
	return fmt.Sprintf("/api/datasets/%d/images", datasetID)
}

func (d GatewayDialect) ImageListURL(datasetID int64) string {
	return d.DatasetDetailURL(datasetID)
}

func (GatewayDialect) ImageDetailURL(imageID int64) string {
	return fmt.Sprintf("/api/images/%d", imageID)
}

func (GatewayDialect) TagListURL() string {
	return "/api/annotations"
}

func (GatewayDialect) TagDetailURL(tagID int64) string {
	return fmt.Sprintf("/api/tags/%d/images", tagID)
}

func (GatewayDialect) AnnotationQueryURL(query string) string {
	return "/api/annotations/" + url.PathEscape(query)
}

func (GatewayDialect) ThumbnailURL(imageID int64, height int) string {
	return fmt.Sprintf("/api/thumbnail/%d/%d/png", imageID, height)
}

func (GatewayDialect) FileURL(remotePath string) string {
	return "/files/omero" + EscapePath(remotePath)
}

func (GatewayDialect) ShareLinkURL(remotePath string) string {
	return "/shares/omero" + EscapePath(remotePath)
}

// ForName returns the dialect registered under the configured name. Unknown
// names fall back to the direct dialect, matching the original deployment
// default.
func ForName(name string) Dialect {
	if strings.EqualFold(name, "gateway") {
		return GatewayDialect{}
	}
	return DirectDialect{}
}

// EscapePath percent-encodes a filesystem-like remote path one segment at a
// time, preserving the literal "/" separators.
func EscapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	out := strings.Join(segments, "/")
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}
