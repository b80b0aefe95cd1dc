package config

// Backend kinds.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinIO = "minio"
)

// Archive codecs.
const (
	CodecNone = "none"
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
)

const (
	defaultDataDir             = "~/.local/share/cutline"
	defaultLogDir              = "~/.local/share/cutline/logs"
	defaultExportsDir          = "~/.local/share/cutline/exports"
	defaultProxiesDir          = "~/.local/share/cutline/proxies"
	defaultArchiveDir          = "~/.local/share/cutline/archive"
	defaultAPIBind             = "127.0.0.1:7521"
	defaultRenderBinary        = "cutline-render"
	defaultRenderWorkers       = 2
	defaultRenderMaxAttempts   = 3
	defaultRenderBackoff       = 2
	defaultRenderMaxBackoff    = 60
	defaultRenderJobTimeout    = 1800
	defaultJobRetentionMinutes = 30
	defaultProxyResolution     = "640x360"
	defaultExportResolution    = "1920x1080"
	defaultExportFormat        = "mp4"
	defaultGCTTLDays           = 30
	defaultGCKeepLatest        = 1
	defaultGCMinDaysInArchive  = 14
	defaultGCParallelism       = 4
	defaultNotifyTimeout       = 10
	defaultNotifyRate          = 2
	defaultNotifyBurst         = 5
	defaultProgressSeconds     = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Exports:      Backend{Kind: BackendLocal, Dir: defaultExportsDir},
			Proxies:      Backend{Kind: BackendLocal, Dir: defaultProxiesDir},
			Archive:      Backend{Kind: BackendLocal, Dir: defaultArchiveDir},
			ArchiveCodec: CodecZstd,
		},
		Render: Render{
			Binary:              defaultRenderBinary,
			Workers:             defaultRenderWorkers,
			MaxAttempts:         defaultRenderMaxAttempts,
			BackoffSeconds:      defaultRenderBackoff,
			MaxBackoffSeconds:   defaultRenderMaxBackoff,
			JobTimeoutSeconds:   defaultRenderJobTimeout,
			JobRetentionMinutes: defaultJobRetentionMinutes,
			ProxyResolution:     defaultProxyResolution,
			ExportResolution:    defaultExportResolution,
			ExportFormat:        defaultExportFormat,
			RecoverOnStart:      true,
		},
		GC: GC{
			TTLDays:          defaultGCTTLDays,
			KeepLatest:       defaultGCKeepLatest,
			MinDaysInArchive: defaultGCMinDaysInArchive,
			Parallelism:      defaultGCParallelism,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyTimeout,
			RatePerSecond:   defaultNotifyRate,
			Burst:           defaultNotifyBurst,
			ProgressSeconds: defaultProgressSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
