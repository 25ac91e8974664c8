package tfm

import (
	"time"

	"github.com/goccy/go-json"
)

// Channel is a remote music collection a TFM server exposes.
type Channel struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl"`
	IsOwner    bool   `json:"isOwner"`
	CanPost    bool   `json:"canPost"`
	IsFavorite bool   `json:"isFavorite"`
	Type       string `json:"type"`
	FileCount  int    `json:"fileCount"`
}

// Entry is one catalog item, file or folder. Immutable once parsed; the
// channel ID is stamped by the fetch operation since the server does not
// repeat it per item.
type Entry struct {
	ID           string
	Name         string
	Path         string
	ParentID     string
	Size         int64
	Type         string
	Category     string
	IsFile       bool
	IsFolder     bool
	HasChildren  bool
	StreamURL    string
	DownloadURL  string
	ThumbnailURL string
	DateCreated  time.Time
	DateModified time.Time
	ChannelID    string
}

// Folder is the reduced shape used for local filesystem mirrors.
type Folder struct {
	ID          string
	Name        string
	Path        string
	ParentID    string
	HasChildren bool
}

func parseChannel(raw json.RawMessage) (Channel, error) {
	var ch Channel
	if err := json.Unmarshal(raw, &ch); nil != err {
		return Channel{}, &APIError{Message: "malformed channel element: " + err.Error()}
	}
	return ch, nil
}

func parseEntry(raw json.RawMessage) (Entry, error) {
	var item struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Path         string `json:"path"`
		ParentID     string `json:"parentId"`
		Size         int64  `json:"size"`
		Type         string `json:"type"`
		Category     string `json:"category"`
		IsFile       bool   `json:"isFile"`
		IsFolder     bool   `json:"isFolder"`
		HasChildren  bool   `json:"hasChildren"`
		StreamURL    string `json:"streamUrl"`
		DownloadURL  string `json:"downloadUrl"`
		ThumbnailURL string `json:"thumbnailUrl"`
		DateCreated  string `json:"dateCreated"`
		DateModified string `json:"dateModified"`
	}
	if err := json.Unmarshal(raw, &item); nil != err {
		return Entry{}, &APIError{Message: "malformed collection element: " + err.Error()}
	}

	return Entry{
		ID:           item.ID,
		Name:         item.Name,
		Path:         item.Path,
		ParentID:     item.ParentID,
		Size:         item.Size,
		Type:         item.Type,
		Category:     item.Category,
		IsFile:       item.IsFile,
		IsFolder:     item.IsFolder,
		HasChildren:  item.HasChildren,
		StreamURL:    item.StreamURL,
		DownloadURL:  item.DownloadURL,
		ThumbnailURL: item.ThumbnailURL,
		DateCreated:  parseISODate(item.DateCreated),
		DateModified: parseISODate(item.DateModified),
		ChannelID:    "",
	}, nil
}

// parseISODate is lenient: servers have been seen omitting or truncating
// timestamps, and a zero time is preferable to dropping the whole entry.
func parseISODate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if nil != err {
		return time.Time{}
	}
	return t
}

func (e Entry) folder() Folder {
	return Folder{
		ID:          e.ID,
		Name:        e.Name,
		Path:        e.Path,
		ParentID:    e.ParentID,
		HasChildren: e.HasChildren,
	}
}
