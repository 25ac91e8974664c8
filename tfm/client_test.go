package tfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewClientTrimsTrailingSlashes(t *testing.T) {
	t.Parallel()

	c := NewClient("https://tfm.example.com///", zerolog.Nop())
	require.Equal(t, "https://tfm.example.com", c.ServerURL())
}

func TestStreamAndDownloadURLs(t *testing.T) {
	t.Parallel()

	c := NewClient("https://tfm.example.com", zerolog.Nop())
	require.Equal(t, "https://tfm.example.com/api/mobile/stream/tfm/42/99", c.StreamURL("42", "99"))
	require.Equal(t, "https://tfm.example.com/api/mobile/stream/download/42/99", c.DownloadURL("42", "99"))
}

func TestLocalStreamURLDoubleEncodesPath(t *testing.T) {
	t.Parallel()

	c := NewClient("https://tfm.example.com", zerolog.Nop())
	got := c.LocalStreamURL("Music/Deep House/set 01.mp3")
	require.Equal(
		t,
		"https://tfm.example.com/api/mobile/stream/local?path=Music%252FDeep%2BHouse%252Fset%2B01.mp3",
		got,
	)
}

func TestChannelsCachesAcrossCalls(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"success":true,"data":[{"id":1,"name":"Deep House"},{"id":2,"name":"Jazz"}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	ctx := context.Background()

	first, err := c.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := c.Channels(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), hits.Load())
}

func TestFavoritesStampsFlag(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/mobile/channels/favorites", r.URL.Path)
		fmt.Fprint(w, `{"success":true,"data":[{"id":1,"name":"Deep House","isFavorite":false}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	favorites, err := c.Favorites(context.Background())
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	require.True(t, favorites[0].IsFavorite)
}

func TestSearchRequestShape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/mobile/channels/0/files", r.URL.Path)
		require.Equal(t, "deep house", r.URL.Query().Get("SearchText"))
		require.Equal(t, "1", r.URL.Query().Get("Page"))
		require.Equal(t, "100", r.URL.Query().Get("PageSize"))
		fmt.Fprint(w, `{"success":true,"data":{"items":[{"id":"9","name":"mix.mp3","isFile":true}]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	entries, err := c.Search(context.Background(), "deep house", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "9", entries[0].ID)
}

func TestLocalEntriesRequestShape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/mobile/files/local", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "Music/Sets", q.Get("Path"))
		require.Equal(t, "audio_folders", q.Get("filter"))
		require.Equal(t, "name", q.Get("sortBy"))
		require.Equal(t, "false", q.Get("sortDescending"))
		fmt.Fprint(w, `{"success":true,"data":{"items":[]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	entries, err := c.LocalEntries(context.Background(), "Music/Sets")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalFoldersFiltersFiles(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("Path"))
		fmt.Fprint(w, `{"success":true,"data":{"items":[
			{"id":"d1","name":"Sets","isFolder":true,"hasChildren":true},
			{"id":"f1","name":"loose.mp3","isFile":true},
			{"id":"d2","name":"Live","isFolder":true}
		]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	folders, err := c.LocalFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 2)
	require.Equal(t, "Sets", folders[0].Name)
	require.True(t, folders[0].HasChildren)
	require.Equal(t, "Live", folders[1].Name)
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	require.NoError(t, c.CheckConnection(context.Background()))
}
