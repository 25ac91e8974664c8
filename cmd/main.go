package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"
	"gopkg.in/matryer/try.v1"

	"github.com/tfmlabs/tfmd/config"
	"github.com/tfmlabs/tfmd/constant"
	"github.com/tfmlabs/tfmd/ctxutil"
	"github.com/tfmlabs/tfmd/errutil"
	"github.com/tfmlabs/tfmd/log"
	"github.com/tfmlabs/tfmd/must"
	"github.com/tfmlabs/tfmd/sliceutil"
	"github.com/tfmlabs/tfmd/tfm"
	"github.com/tfmlabs/tfmd/tfm/store"
)

const (
	flagConfigFilePath = "config"
	flagChannelID      = "channel"
	flagFolderID       = "folder"
	flagPageSize       = "page-size"
	flagSearchPage     = "page"
)

func main() {
	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	configFlag := &cli.StringFlag{ //nolint:exhaustruct
		Name:     flagConfigFilePath,
		Aliases:  []string{"c"},
		Usage:    "Config file path",
		Required: false,
	}
	channelFlag := &cli.StringFlag{ //nolint:exhaustruct
		Name:     flagChannelID,
		Usage:    "Channel ID",
		Required: true,
	}
	pageSizeFlag := &cli.IntFlag{ //nolint:exhaustruct
		Name:  flagPageSize,
		Usage: "Page size used when walking the catalog",
		Value: 0,
	}

	//nolint:exhaustruct
	app := &cli.App{
		Name:     "tfmd",
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "TFM catalog browser and track downloader",
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:   "ping",
				Usage:  "Check connectivity to the TFM server",
				Action: runPing,
				Flags:  []cli.Flag{configFlag},
			},
			//nolint:exhaustruct
			{
				Name:   "channels",
				Usage:  "List all channels",
				Action: runChannels,
				Flags:  []cli.Flag{configFlag},
			},
			//nolint:exhaustruct
			{
				Name:   "favorites",
				Usage:  "List favorite channels",
				Action: runFavorites,
				Flags:  []cli.Flag{configFlag},
			},
			//nolint:exhaustruct
			{
				Name:   "tracks",
				Usage:  "List all tracks of a channel, or of one of its folders",
				Action: runTracks,
				Flags: []cli.Flag{
					configFlag,
					channelFlag,
					pageSizeFlag,
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  flagFolderID,
						Usage: "Folder ID within the channel",
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "search",
				Usage:     "Search tracks across channels",
				ArgsUsage: "<text>",
				Action:    runSearch,
				Flags: []cli.Flag{
					configFlag,
					pageSizeFlag,
					//nolint:exhaustruct
					&cli.IntFlag{
						Name:  flagSearchPage,
						Usage: "Result page to show",
						Value: 1,
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "local",
				Usage:     "List the server's local files under a path",
				ArgsUsage: "[path]",
				Action:    runLocal,
				Flags:     []cli.Flag{configFlag},
			},
			//nolint:exhaustruct
			{
				Name:      "urls",
				Usage:     "Print stream and download URLs for a file",
				ArgsUsage: "<file-id>",
				Action:    runURLs,
				Flags:     []cli.Flag{configFlag, channelFlag},
			},
			//nolint:exhaustruct
			{
				Name:      "fetch",
				Usage:     "Download a single track into the cache",
				ArgsUsage: "<file-id>",
				Action:    runFetch,
				Flags:     []cli.Flag{configFlag, channelFlag, pageSizeFlag},
			},
			//nolint:exhaustruct
			{
				Name:   "prefetch",
				Usage:  "Download every track of a channel or folder into the cache",
				Action: runPrefetch,
				Flags: []cli.Flag{
					configFlag,
					channelFlag,
					pageSizeFlag,
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  flagFolderID,
						Usage: "Folder ID within the channel",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			if flawBytes, yamlErr := errutil.FlawToYAML(must.BeFlaw(err)); nil == yamlErr {
				if writeErr := os.WriteFile("flaw.yaml", flawBytes, 0o600); nil != writeErr {
					logger.Error().Err(writeErr).Msg("Failed to write flaw.yaml")
				}
			}
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

type application struct {
	cfg    *config.Config
	client *tfm.Client
	logger zerolog.Logger
}

func initApp(cliCtx *cli.Context) (*application, error) {
	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)

	var cfg *config.Config
	cfgFilePath := cliCtx.String(flagConfigFilePath)
	cfgEnv := os.Getenv("CONFIG")
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, errors.New("config file path and config environment variable are both set. specify only one")
	case cfgFilePath == "" && cfgEnv == "":
		return nil, errors.New("config file path and config environment variable are both empty. specify one")
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		c, err := config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
		cfg = c
	default:
		logger.Debug().Msg("Loading config from environment variable")
		c, err := config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
		cfg = c
	}

	return &application{
		cfg:    cfg,
		client: tfm.NewClient(cfg.ServerURL, logger.With().Str("module", "tfm").Logger()),
		logger: logger,
	}, nil
}

func signalCtx(cliCtx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
}

func runPing(cliCtx *cli.Context) error {
	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	op := func() error {
		if err := a.client.CheckConnection(ctx); nil != err {
			if _, fatal := errutil.IsAny(err, context.Canceled, tfm.ErrServerURLNotConfigured); fatal {
				return backoff.Permanent(err)
			}
			a.logger.Warn().Err(err).Msg("Server is not reachable yet")
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, bo); nil != err {
		return fmt.Errorf("server is not reachable: %v", err)
	}

	a.logger.Info().Str("server_url", a.cfg.ServerURL).Msg("Server is reachable")
	return nil
}

func runChannels(cliCtx *cli.Context) error {
	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	channels, err := a.client.Channels(ctx)
	if nil != err {
		return err
	}
	printLines(sliceutil.Map(channels, formatChannel))
	return nil
}

func runFavorites(cliCtx *cli.Context) error {
	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	favorites, err := a.client.Favorites(ctx)
	if nil != err {
		return err
	}
	printLines(sliceutil.Map(favorites, formatChannel))
	return nil
}

func runTracks(cliCtx *cli.Context) error {
	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	entries, err := a.listEntries(ctx, cliCtx)
	if nil != err {
		return err
	}
	printLines(sliceutil.Map(entries, formatEntry))
	return nil
}

func runSearch(cliCtx *cli.Context) error {
	text := strings.TrimSpace(strings.Join(cliCtx.Args().Slice(), " "))
	if text == "" {
		return errors.New("search text is required")
	}

	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	entries, err := a.client.Search(ctx, text, cliCtx.Int(flagSearchPage), cliCtx.Int(flagPageSize))
	if nil != err {
		return err
	}
	printLines(sliceutil.Map(entries, formatEntry))
	return nil
}

func runLocal(cliCtx *cli.Context) error {
	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	path := cliCtx.Args().First()
	if path == "" {
		folders, err := a.client.LocalFolders(ctx)
		if nil != err {
			return err
		}
		printLines(sliceutil.Map(folders, func(f tfm.Folder) string {
			return fmt.Sprintf("%s\t%s", f.ID, f.Name)
		}))
		return nil
	}

	entries, err := a.client.LocalEntries(ctx, path)
	if nil != err {
		return err
	}
	printLines(sliceutil.Map(entries, formatEntry))
	return nil
}

func runURLs(cliCtx *cli.Context) error {
	fileID := cliCtx.Args().First()
	if fileID == "" {
		return errors.New("file ID is required")
	}

	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}

	channelID := cliCtx.String(flagChannelID)
	printLines([]string{
		"stream:   " + a.client.StreamURL(channelID, fileID),
		"download: " + a.client.DownloadURL(channelID, fileID),
	})
	return nil
}

func runFetch(cliCtx *cli.Context) error {
	fileID := cliCtx.Args().First()
	if fileID == "" {
		return errors.New("file ID is required")
	}

	a, err := initApp(cliCtx)
	if nil != err {
		return err
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	entries, err := a.client.ChannelTracks(ctx, cliCtx.String(flagChannelID), cliCtx.Int(flagPageSize))
	if nil != err {
		return err
	}

	var entry *tfm.Entry
	for i := range entries {
		if entries[i].ID == fileID && entries[i].IsFile {
			entry = &entries[i]
			break
		}
	}
	if nil == entry {
		return fmt.Errorf("file %s was not found in channel %s", fileID, cliCtx.String(flagChannelID))
	}

	s, err := store.New(a.cfg.CacheDir, a.logger.With().Str("module", "store").Logger())
	if nil != err {
		return err
	}

	// An almost-complete download gets a short grace period after Ctrl-C so
	// it can still be verified and stored.
	fetchCtx, cancelFetch := ctxutil.WithDelayedTimeout(ctx, 5*time.Second)
	defer cancelFetch()

	var path string
	err = try.Do(func(attempt int) (retry bool, err error) {
		const maxAttempts = 3
		attemptRemained := attempt < maxAttempts
		time.Sleep(time.Duration(attempt-1) * 3 * time.Second)
		p, err := s.Resolve(fetchCtx, store.FromEntry(a.client, *entry))
		if nil != err {
			var (
				netErr    *tfm.NetworkError
				statusErr *tfm.HTTPStatusError
				truncErr  *store.TruncatedDownloadError
				writeErr  *store.WriteError
			)
			switch {
			case errutil.IsContext(ctx):
				return false, err
			case errors.Is(err, context.DeadlineExceeded):
				return attemptRemained, context.DeadlineExceeded
			case errors.Is(err, store.ErrEmptyDownload),
				errors.Is(err, store.ErrUnexpectedContentType),
				errors.As(err, &truncErr),
				errors.As(err, &netErr):
				return attemptRemained, err
			case errors.As(err, &statusErr), errors.As(err, &writeErr):
				return false, err
			case errutil.IsFlaw(err):
				return false, must.BeFlaw(err).Append(flaw.P{"file_id": fileID})
			default:
				panic(errutil.UnknownError(err))
			}
		}
		path = p
		return false, nil
	})
	if nil != err {
		return err
	}

	a.logger.Info().Str("path", path).Msg("Track is available locally")
	return nil
}

func runPrefetch(cliCtx *cli.Context) (err error) {
	a, initErr := initApp(cliCtx)
	if nil != initErr {
		return initErr
	}
	ctx, cancel := signalCtx(cliCtx)
	defer cancel()

	defer func() {
		if r := recover(); nil != r {
			a.logger.Error().Func(log.Panic(r)).Msg("Prefetch panicked")
			err = fmt.Errorf("prefetch panicked: %v", r)
		}
	}()

	entries, err := a.listEntries(ctx, cliCtx)
	if nil != err {
		return err
	}

	descriptors := make([]store.Descriptor, 0, len(entries))
	for _, e := range entries {
		if e.IsFile {
			descriptors = append(descriptors, store.FromEntry(a.client, e))
		}
	}
	if len(descriptors) == 0 {
		a.logger.Info().Msg("Nothing to prefetch")
		return nil
	}

	s, err := store.New(a.cfg.CacheDir, a.logger.With().Str("module", "store").Logger())
	if nil != err {
		return err
	}

	fetchCtx, cancelFetch := ctxutil.WithDelayedTimeout(ctx, 5*time.Second)
	defer cancelFetch()

	var failed int
	for _, res := range s.Prefetch(fetchCtx, descriptors) {
		if nil != res.Err {
			failed++
			a.logger.Error().
				Err(res.Err).
				Str("track", res.Descriptor.Name).
				Msg("Failed to prefetch track")
			continue
		}
		a.logger.Debug().Str("path", res.Path).Msg("Track prefetched")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tracks failed to prefetch", failed, len(descriptors))
	}

	a.logger.Info().Int("tracks", len(descriptors)).Msg("Prefetch completed")
	return nil
}

func (a *application) listEntries(ctx context.Context, cliCtx *cli.Context) ([]tfm.Entry, error) {
	channelID := cliCtx.String(flagChannelID)
	pageSize := cliCtx.Int(flagPageSize)
	if folderID := cliCtx.String(flagFolderID); folderID != "" {
		return a.client.FolderContents(ctx, channelID, folderID, pageSize)
	}
	return a.client.ChannelTracks(ctx, channelID, pageSize)
}

func formatChannel(ch tfm.Channel) string {
	marker := " "
	if ch.IsFavorite {
		marker = "*"
	}
	return fmt.Sprintf("%s %d\t%s\t(%d files)", marker, ch.ID, ch.Name, ch.FileCount)
}

func formatEntry(e tfm.Entry) string {
	kind := "file"
	if e.IsFolder {
		kind = "dir"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d", e.ID, kind, e.Name, e.Size)
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}
