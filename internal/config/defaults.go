package config

const (
	defaultConfigPath                = "~/.config/vidharvest/config.toml"
	defaultDataDir                   = "~/.local/share/vidharvest"
	defaultLogDir                    = "~/.local/share/vidharvest/logs"
	defaultStorageFolder             = "videos"
	defaultThumbnailsFolder          = "thumbnails"
	defaultStorageRegion             = "us-east-1"
	defaultPresignTTL                = 3600
	defaultFeedHashField             = "custom2"
	defaultFeedPageSize              = 1000
	defaultFeedConcurrency           = 10
	defaultFeedRetries               = 3
	defaultFeedRetryBackoffMS        = 500
	defaultFeedRequestTimeout        = 30
	defaultNavigateTimeout           = 30
	defaultTriggerSelector           = "a.stream-button, button.stream-button"
	defaultOuterFrameSelector        = "iframe"
	defaultPlaySelector              = ".play-button, button[aria-label='Play']"
	defaultInnerFrameSelector        = "iframe"
	defaultMediaSelector             = "video"
	defaultPlaybackScript            = "() => { const v = document.querySelector('video'); if (v) { v.play().catch(() => {}); } }"
	defaultTriggerTimeoutMS          = 10000
	defaultFrameTimeoutMS            = 10000
	defaultAdDwellMS                 = 8000
	defaultPollIntervalMS            = 1000
	defaultSourceDeadlineMS          = 20000
	defaultDownloadOrigin            = "guru"
	defaultChunkSize                 = 64 * 1024
	defaultDownloadTimeout           = 3600
	defaultFFprobeBinary             = "ffprobe"
	defaultThumbnailConcurrency      = 5
	defaultThumbnailMaxAttempts      = 4
	defaultThumbnailTimeout          = 30
	defaultSupersession              = SupersessionStrict
	defaultWorkflowWorkers           = 1
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultWorkflowMaxAttempts       = 3
	defaultWorkflowRetryDelay        = 600
	defaultReconcileInterval         = 60
	defaultReconcileCursor           = "feed"
	defaultRefCacheSize              = 4096
	defaultRefCacheTTL               = 600
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Supersession policies accepted by selection.supersession.
const (
	SupersessionStrict     = "strict"
	SupersessionAllowEqual = "allow_equal"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Storage: Storage{
			Region:           defaultStorageRegion,
			Folder:           defaultStorageFolder,
			ThumbnailsFolder: defaultThumbnailsFolder,
			UseSSL:           true,
			PresignTTL:       defaultPresignTTL,
		},
		Feed: Feed{
			HashField:      defaultFeedHashField,
			PageSize:       defaultFeedPageSize,
			Concurrency:    defaultFeedConcurrency,
			Retries:        defaultFeedRetries,
			RetryBackoffMS: defaultFeedRetryBackoffMS,
			RequestTimeout: defaultFeedRequestTimeout,
		},
		Browser: Browser{
			Headless:         true,
			NavigateTimeout:  defaultNavigateTimeout,
			TriggerSelector:  defaultTriggerSelector,
			OuterFrame:       defaultOuterFrameSelector,
			PlaySelector:     defaultPlaySelector,
			InnerFrame:       defaultInnerFrameSelector,
			MediaSelector:    defaultMediaSelector,
			PlaybackScript:   defaultPlaybackScript,
			TriggerTimeoutMS: defaultTriggerTimeoutMS,
			FrameTimeoutMS:   defaultFrameTimeoutMS,
			AdDwellMS:        defaultAdDwellMS,
			PollIntervalMS:   defaultPollIntervalMS,
			SourceDeadlineMS: defaultSourceDeadlineMS,
		},
		Download: Download{
			Origin:         defaultDownloadOrigin,
			ChunkSize:      defaultChunkSize,
			TimeoutSeconds: defaultDownloadTimeout,
			FFprobeBinary:  defaultFFprobeBinary,
		},
		Thumbnails: Thumbnails{
			Concurrency:    defaultThumbnailConcurrency,
			MaxAttempts:    defaultThumbnailMaxAttempts,
			TimeoutSeconds: defaultThumbnailTimeout,
		},
		Selection: Selection{
			Supersession: defaultSupersession,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
			MaxAttempts:        defaultWorkflowMaxAttempts,
			RetryDelay:         defaultWorkflowRetryDelay,
		},
		Reconcile: Reconcile{
			IntervalMinutes: defaultReconcileInterval,
			CursorName:      defaultReconcileCursor,
		},
		Sites: Sites{
			RefCacheSize: defaultRefCacheSize,
			RefCacheTTL:  defaultRefCacheTTL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
