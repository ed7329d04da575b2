// Package browse turns virtual browse paths into normalized listings with
// breadcrumb trails, consulting the router to classify paths and the remote
// client to resolve them.
package browse

// Entry is one row of a listing, in remote API order.
type Entry struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Path         string `json:"path"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	IsContainer  bool   `json:"is_container"`

	// Source identifies the remote object for file import; set on image
	// entries only.
	Source string `json:"source,omitempty"`

	Author    string `json:"author,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Crumb is one breadcrumb segment.
type Crumb struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Listing is the normalized result of a listing request.
type Listing struct {
	Entries        []Entry `json:"entries"`
	Breadcrumb     []Crumb `json:"breadcrumb"`
	IsSearchResult bool    `json:"is_search_result"`
}
