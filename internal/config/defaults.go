package config

const (
	defaultRootDir          = "."
	defaultStateDir         = "~/.local/share/snare"
	defaultLedgerName       = "file_info.csv"
	defaultLogDirName       = "logs"
	defaultPollInterval     = 5
	defaultDeployBurst      = 1
	defaultDecoyExtension   = ".jpg"
	defaultDecoySuffix      = "hpot"
	defaultWatchMaxDirs     = 4096
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultNotifyTimeout    = 10
)

var (
	defaultAdjectives = []string{"funny", "silly", "wacky", "goofy", "crazy", "quirky", "whimsical"}
	defaultNouns      = []string{"banana", "kangaroo", "unicorn", "penguin", "squirrel", "pickle", "robot"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RootDir:  defaultRootDir,
			StateDir: defaultStateDir,
		},
		Monitor: Monitor{
			PollInterval: defaultPollInterval,
			DeployBurst:  defaultDeployBurst,
		},
		Decoy: Decoy{
			Extension:    defaultDecoyExtension,
			Suffix:       defaultDecoySuffix,
			Adjectives:   append([]string(nil), defaultAdjectives...),
			Nouns:        append([]string(nil), defaultNouns...),
			UniqueSuffix: true,
		},
		Watch: Watch{
			MaxDirs: defaultWatchMaxDirs,
		},
		Notify: Notify{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
