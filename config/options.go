package config

import "time"

var (
	ChannelsRequestTimeout   = 10 * time.Second
	PageRequestTimeout       = 15 * time.Second
	LocalFilesRequestTimeout = 15 * time.Second
	SearchRequestTimeout     = 15 * time.Second
	TrackDownloadTimeout     = 60 * time.Second
	ConnectionCheckTimeout   = 30 * time.Second
)
