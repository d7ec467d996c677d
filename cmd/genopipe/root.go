package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dcshock/genopipe/logger"
	"github.com/dcshock/genopipe/task"
)

// version is set at build time via -ldflags.
var version = "dev"

// Dispatcher names accepted by --dispatcher.
const (
	dispatchLocal = "local"
	dispatchLSF   = "lsf"
)

// settings is the CLI configuration after flags, environment and the optional
// config file have been merged.
type settings struct {
	Dispatcher string     `mapstructure:"dispatcher"`
	LedgerDSN  string     `mapstructure:"ledger_dsn"`
	MaxJobs    int        `mapstructure:"max_jobs"`
	Reuse      bool       `mapstructure:"reuse"`
	LogJSON    bool       `mapstructure:"log_json"`
	Verbose    bool       `mapstructure:"verbose"`
	Tools      task.Tools `mapstructure:"tools"`
	LSF        struct {
		Bsub  string `mapstructure:"bsub"`
		Bjobs string `mapstructure:"bjobs"`
	} `mapstructure:"lsf"`
}

var rootFlags struct {
	configFile string
}

// cfg is loaded before any subcommand runs.
var cfg settings

var rootCmd = &cobra.Command{
	Use:   "genopipe",
	Short: "Genotype calling workflows for Illumina arrays",
	Long: "genopipe runs the GenCall and Illuminus genotype calling workflow,\n" +
		"dispatching external tools locally or to an LSF cluster.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(rootFlags.configFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = s
		return logger.Initialize(cfg.LogJSON, cfg.Verbose)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "configuration file (YAML)")
	pf.Bool("log-json", false, "write logs as JSON")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("dispatcher", dispatchLocal, "where external tools run: local or lsf")
	pf.String("ledger-dsn", "", "Postgres connection string of the run ledger")
	pf.Int("max-jobs", 0, "local jobs run at once (0 means one per CPU)")
	pf.Bool("reuse", false, "skip stages whose outputs already exist")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(illuminusCmd)
	rootCmd.AddCommand(plinkDiffCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.Version = version
}

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"log-json":   "log_json",
	"verbose":    "verbose",
	"dispatcher": "dispatcher",
	"ledger-dsn": "ledger_dsn",
	"max-jobs":   "max_jobs",
	"reuse":      "reuse",
}

// loadSettings merges defaults, the config file, GENOPIPE_* environment
// variables and flags, in increasing order of precedence.
func loadSettings(configFile string, flags *pflag.FlagSet) (settings, error) {
	v := viper.New()
	v.SetEnvPrefix("GENOPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, errors.Wrapf(err, "read config %s", configFile)
		}
	}
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return settings{}, errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, errors.Wrap(err, "decode config")
	}
	switch s.Dispatcher {
	case dispatchLocal, dispatchLSF:
	default:
		return settings{}, errors.WithHint(errors.Newf("unknown dispatcher %q", s.Dispatcher),
			"use --dispatcher local or --dispatcher lsf")
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dispatcher", dispatchLocal)
	v.SetDefault("ledger_dsn", "")
	v.SetDefault("max_jobs", 0)
	v.SetDefault("reuse", false)
	v.SetDefault("log_json", false)
	v.SetDefault("verbose", false)
	v.SetDefault("lsf.bsub", "bsub")
	v.SetDefault("lsf.bjobs", "bjobs")

	t := task.DefaultTools()
	v.SetDefault("tools.genotype_call", t.GenotypeCall)
	v.SetDefault("tools.simtools", t.Simtools)
	v.SetDefault("tools.illuminus", t.Illuminus)
	v.SetDefault("tools.g2i", t.G2I)
	v.SetDefault("tools.plink", t.Plink)
	v.SetDefault("tools.qc", t.QC)
	v.SetDefault("tools.update_annotation", t.UpdateAnnotation)
}
