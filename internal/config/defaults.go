package config

const (
	defaultConfigPath         = "~/.config/facelane/config.toml"
	defaultDataDir            = "~/.local/share/facelane"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultMaxUploadMB        = 200
	defaultShutdownGrace      = 10
	defaultEnginePython       = "python"
	defaultEngineScript       = "facefusion.py"
	defaultEngineWorkDir      = "~/facefusion"
	defaultEngineConfigPath   = "~/facefusion/facefusion.ini"
	defaultPrepareTimeout     = 120
	defaultImageProvider      = "cpu"
	defaultVideoProvider      = "cuda"
	defaultMemoryStrategy     = "strict"
	defaultCancelGraceSeconds = 10
	defaultMaxVideoMB         = 60
	defaultMaxImageMB         = 20
	defaultMaxVideoSeconds    = 120
	defaultFFprobeBinary      = "ffprobe"
	defaultMode               = "photo_video_fast"
	defaultWebhookTimeout     = 10
	defaultWebhookUserAgent   = "facelane-webhook/1"
	defaultEventsPollMillis   = 1000
	defaultEventsKeepalive    = 15
	defaultStoreBackend       = "file"
	defaultBusSubjectPrefix   = "facelane.jobs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	storeBackendFile          = "file"
	storeBackendSQLite        = "sqlite"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		API: API{
			Bind:          defaultAPIBind,
			JWTRequired:   false,
			MaxUploadMB:   defaultMaxUploadMB,
			ShutdownGrace: defaultShutdownGrace,
		},
		Engine: Engine{
			Python:         defaultEnginePython,
			Script:         defaultEngineScript,
			WorkDir:        defaultEngineWorkDir,
			ConfigPath:     defaultEngineConfigPath,
			PrepareTimeout: defaultPrepareTimeout,
		},
		Lanes: Lanes{
			Image: LaneSettings{
				ExecutionProviders:  []string{defaultImageProvider},
				VideoMemoryStrategy: defaultMemoryStrategy,
			},
			Video: LaneSettings{
				ExecutionProviders:  []string{defaultVideoProvider},
				VideoMemoryStrategy: defaultMemoryStrategy,
			},
			KillOnCancel:       false,
			CancelGraceSeconds: defaultCancelGraceSeconds,
		},
		Limits: Limits{
			MaxVideoMB:      defaultMaxVideoMB,
			MaxImageMB:      defaultMaxImageMB,
			MaxVideoSeconds: defaultMaxVideoSeconds,
			FFprobeBinary:   defaultFFprobeBinary,
		},
		Jobs: Jobs{
			DefaultMode: defaultMode,
		},
		Webhook: Webhook{
			RequestTimeout: defaultWebhookTimeout,
			UserAgent:      defaultWebhookUserAgent,
		},
		Events: Events{
			PollIntervalMillis: defaultEventsPollMillis,
			KeepaliveSeconds:   defaultEventsKeepalive,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Bus: Bus{
			SubjectPrefix: defaultBusSubjectPrefix,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
