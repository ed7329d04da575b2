package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	r := New(DirectDialect{})

	tests := []struct {
		name string
		path string
		want Descriptor
	}{
		{"root", "/", Descriptor{Kind: KindRoot}},
		{"empty is root", "", Descriptor{Kind: KindRoot}},
		{"projects root", "/projects", Descriptor{Kind: KindProjectsRoot}},
		{"projects trailing slash", "/projects/", Descriptor{Kind: KindProjectsRoot}},
		{"tags root", "/tags", Descriptor{Kind: KindTagsRoot}},
		{"project short form", "/proj/42", Descriptor{Kind: KindProject, ID: 42}},
		{"project long form", "/get/project/42", Descriptor{Kind: KindProject, ID: 42}},
		{"project underscore form", "/get_project/42", Descriptor{Kind: KindProject, ID: 42}},
		{"project with suffix", "/proj/7/detail", Descriptor{Kind: KindProject, ID: 7}},
		{"dataset", "/dataset/9", Descriptor{Kind: KindDataset, ID: 9}},
		{"image", "/image/1234", Descriptor{Kind: KindImage, ID: 1234}},
		{"tag", "/tag/5", Descriptor{Kind: KindTag, ID: 5}},
		{"annotation query", "/annotations?query=skin", Descriptor{Kind: KindAnnotationQuery}},
		{"find annotations", "/find/annotations?query=skin", Descriptor{Kind: KindAnnotationQuery}},
		{"missing leading slash", "proj/3", Descriptor{Kind: KindProject, ID: 3}},
		{"unknown path", "/bogus/42", Invalid},
		{"detail without id", "/proj/abc", Invalid},
		{"datasets plural is not dataset", "/datasets", Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(tt.path))
		})
	}
}

// Classify and Path are inverses for every kind that carries an id, so a
// listing entry's path always drills back down to the same resource.
func TestPathRoundTrip(t *testing.T) {
	r := New(GatewayDialect{})

	descriptors := []Descriptor{
		{Kind: KindRoot},
		{Kind: KindProjectsRoot},
		{Kind: KindTagsRoot},
		{Kind: KindProject, ID: 1},
		{Kind: KindDataset, ID: 22},
		{Kind: KindImage, ID: 333},
		{Kind: KindTag, ID: 4444},
	}
	for _, d := range descriptors {
		assert.Equal(t, d, r.Classify(r.Path(d)), "descriptor %v", d)
	}
}

func TestDirectDialectURLs(t *testing.T) {
	d := DirectDialect{}

	assert.Equal(t, "/ome_seadragon/get/projects", d.ProjectListURL())
	assert.Equal(t, "/ome_seadragon/get/project/42?datasets=true", d.ProjectDetailURL(42))
	assert.Equal(t, "/ome_seadragon/get/dataset/9?images=true", d.DatasetDetailURL(9))
	assert.Equal(t, "/ome_seadragon/get/image/7?rois=false", d.ImageDetailURL(7))
	assert.Equal(t, "/ome_seadragon/get/annotations", d.TagListURL())
	assert.Equal(t, "/ome_seadragon/get/tag/5?images=true", d.TagDetailURL(5))
	assert.Equal(t, "/ome_seadragon/find/annotations?query=skin+biopsy", d.AnnotationQueryURL("skin biopsy"))
	assert.Equal(t, "/ome_seadragon/deepzoom/get/thumbnail/7.dzi?size=128", d.ThumbnailURL(7, 128))
}

func TestGatewayDialectURLs(t *testing.T) {
	d := GatewayDialect{}

	assert.Equal(t, "/api/projects", d.ProjectListURL())
	assert.Equal(t, "/api/projects/42/datasets", d.ProjectDetailURL(42))
	assert.Equal(t, "/api/datasets/9/images", d.DatasetDetailURL(9))
	assert.Equal(t, "/api/images/7", d.ImageDetailURL(7))
	assert.Equal(t, "/api/annotations", d.TagListURL())
	assert.Equal(t, "/api/tags/5/images", d.TagDetailURL(5))
	assert.Equal(t, "/api/annotations/skin%20biopsy", d.AnnotationQueryURL("skin biopsy"))
	assert.Equal(t, "/api/thumbnail/7/96/png", d.ThumbnailURL(7, 96))
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/a/b.txt", "/a/b.txt"},
		{"a/b.txt", "/a/b.txt"},
		{"/dir with space/file name.tiff", "/dir%20with%20space/file%20name.tiff"},
		{"/perc%ent/q?.png", "/perc%25ent/q%3F.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapePath(tt.in), "input %q", tt.in)
	}
}

func TestForName(t *testing.T) {
	assert.Equal(t, "gateway", ForName("gateway").Name())
	assert.Equal(t, "gateway", ForName("Gateway").Name())
	assert.Equal(t, "direct", ForName("direct").Name())
	assert.Equal(t, "direct", ForName("").Name())
	assert.Equal(t, "direct", ForName("v3").Name())
}

func TestRequestURL(t *testing.T) {
	d := DirectDialect{}

	assert.Equal(t, "/ome_seadragon/get/projects", RequestURL(d, Descriptor{Kind: KindProjectsRoot}))
	assert.Equal(t, "/ome_seadragon/get/project/3?datasets=true", RequestURL(d, Descriptor{Kind: KindProject, ID: 3}))
	assert.Equal(t, "", RequestURL(d, Descriptor{Kind: KindRoot}))
	assert.Equal(t, "", RequestURL(d, Invalid))
}
