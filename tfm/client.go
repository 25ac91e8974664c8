package tfm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/tfmlabs/tfmd/cache"
	"github.com/tfmlabs/tfmd/config"
	"github.com/tfmlabs/tfmd/httputil"
)

// Client talks to a TFM catalog server. All fetch operations either return
// the complete collection or an error; partial results are never handed out.
type Client struct {
	serverURL string
	logger    zerolog.Logger
	channels  *cache.Memo[[]Channel]

	aggMux    sync.Mutex
	aggGen    uint64
	aggStates map[string]*aggregationState
}

func NewClient(serverURL string, logger zerolog.Logger) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		logger:    logger,
		channels:  cache.New[[]Channel](10),
		aggMux:    sync.Mutex{},
		aggGen:    0,
		aggStates: make(map[string]*aggregationState),
	}
}

func (c *Client) ServerURL() string {
	return c.serverURL
}

// CheckConnection verifies the server is configured and reachable using the
// channels endpoint as a probe.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, err := c.fetchChannels(ctx, "/api/mobile/channels", config.ConnectionCheckTimeout); nil != err {
		return err
	}
	return nil
}

// Channels lists all channels, consulting a short-lived in-memory cache so
// repeated sidebar-style rebuilds do not refetch.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}
	item, err := c.channels.Fetch("channels", cache.DefaultChannelsTTL, func() ([]Channel, error) {
		return c.fetchChannels(ctx, "/api/mobile/channels", config.ChannelsRequestTimeout)
	})
	if nil != err {
		return nil, err
	}
	return item.Value(), nil
}

// Favorites lists channels the account marked favorite. The endpoint does
// not set the favorite flag on its own payload, so it is stamped here.
func (c *Client) Favorites(ctx context.Context) ([]Channel, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}
	item, err := c.channels.Fetch("favorites", cache.DefaultChannelsTTL, func() ([]Channel, error) {
		favorites, err := c.fetchChannels(ctx, "/api/mobile/channels/favorites", config.ChannelsRequestTimeout)
		if nil != err {
			return nil, err
		}
		for i := range favorites {
			favorites[i].IsFavorite = true
		}
		return favorites, nil
	})
	if nil != err {
		return nil, err
	}
	return item.Value(), nil
}

func (c *Client) fetchChannels(ctx context.Context, endpoint string, timeout time.Duration) ([]Channel, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}

	env, err := c.getEnvelope(ctx, endpoint, timeout)
	if nil != err {
		return nil, err
	}

	items := env.items()
	channels := make([]Channel, 0, len(items))
	for _, raw := range items {
		ch, err := parseChannel(raw)
		if nil != err {
			return nil, err
		}
		channels = append(channels, ch)
	}
	c.logger.Debug().Int("count", len(channels)).Str("endpoint", endpoint).Msg("Loaded channels")
	return channels, nil
}

// ChannelTracks fetches the full track listing of a channel, walking all
// pages. Request key: "channel:{id}".
func (c *Client) ChannelTracks(ctx context.Context, channelID string, pageSize int) ([]Entry, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	key := "channel:" + channelID
	return c.fetchCollection(ctx, key, pageSpec{
		endpoint: func(page int) string {
			return fmt.Sprintf(
				"/api/mobile/channels/%s/files?Page=%d&PageSize=%d",
				url.PathEscape(channelID), page, pageSize,
			)
		},
		timeout: config.PageRequestTimeout,
		stamp: func(e *Entry) {
			e.ChannelID = channelID
		},
	})
}

// FolderContents fetches the full item listing of a folder within a channel,
// walking all pages. Request key: "folder:{channel}:{folder}".
func (c *Client) FolderContents(ctx context.Context, channelID, folderID string, pageSize int) ([]Entry, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	key := "folder:" + channelID + ":" + folderID
	return c.fetchCollection(ctx, key, pageSpec{
		endpoint: func(page int) string {
			return fmt.Sprintf(
				"/api/mobile/channels/%s/files?folderId=%s&Page=%d&PageSize=%d",
				url.PathEscape(channelID), url.QueryEscape(folderID), page, pageSize,
			)
		},
		timeout: config.PageRequestTimeout,
		stamp: func(e *Entry) {
			e.ChannelID = channelID
		},
	})
}

// Search queries the files endpoint with a search text. A single page is
// returned; paging through results is the caller's choice.
func (c *Client) Search(ctx context.Context, text string, page, pageSize int) ([]Entry, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	endpoint := fmt.Sprintf(
		"/api/mobile/channels/0/files?SearchText=%s&Page=%d&PageSize=%d",
		url.QueryEscape(text), page, pageSize,
	)
	return c.fetchSingle(ctx, endpoint, config.SearchRequestTimeout, nil)
}

// LocalEntries lists the contents of a path on the server's local
// filesystem mirror. Empty path lists the root audio folders.
func (c *Client) LocalEntries(ctx context.Context, path string) ([]Entry, error) {
	if c.serverURL == "" {
		return nil, ErrServerURLNotConfigured
	}

	params := make(url.Values, 6)
	if path != "" {
		params.Set("Path", path)
	}
	params.Set("filter", "audio_folders")
	params.Set("page", "1")
	params.Set("pageSize", strconv.Itoa(defaultPageSize))
	params.Set("sortBy", "name")
	params.Set("sortDescending", "false")

	endpoint := "/api/mobile/files/local?" + params.Encode()
	return c.fetchSingle(ctx, endpoint, config.LocalFilesRequestTimeout, nil)
}

// LocalFolders lists the root local folders, dropping file entries.
func (c *Client) LocalFolders(ctx context.Context) ([]Folder, error) {
	entries, err := c.LocalEntries(ctx, "")
	if nil != err {
		return nil, err
	}
	return lo.FilterMap(entries, func(e Entry, _ int) (Folder, bool) {
		return e.folder(), e.IsFolder
	}), nil
}

// StreamURL builds the streaming URL for a channel file.
func (c *Client) StreamURL(channelID, fileID string) string {
	return c.serverURL + "/api/mobile/stream/tfm/" + channelID + "/" + fileID
}

// DownloadURL builds the full-file download URL for a channel file.
func (c *Client) DownloadURL(channelID, fileID string) string {
	return c.serverURL + "/api/mobile/stream/download/" + channelID + "/" + fileID
}

// LocalStreamURL builds the streaming URL for a local-mirror file. The
// server expects the path percent-encoded twice.
func (c *Client) LocalStreamURL(path string) string {
	return c.serverURL + "/api/mobile/stream/local?path=" + url.QueryEscape(url.QueryEscape(path))
}

// getEnvelope performs one GET against the server and decodes the response
// envelope. It owns the transport and protocol error mapping.
func (c *Client) getEnvelope(ctx context.Context, endpoint string, timeout time.Duration) (env *envelope, err error) {
	reqURL := c.serverURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		return nil, &NetworkError{URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	client := http.Client{Timeout: timeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			return nil, &NetworkError{URL: reqURL, Err: err}
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr && nil == err {
			err = &NetworkError{URL: reqURL, Err: fmt.Errorf("failed to close response body: %v", closeErr)}
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	respBytes, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return nil, &NetworkError{URL: reqURL, Err: err}
	}

	return parseEnvelope(respBytes)
}
