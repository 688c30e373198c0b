package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"phonics-master/internal/config"
	"phonics-master/internal/logger"
)

type rootOptions struct {
	port       string
	configPath string
	env        string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()
	v.SetEnvPrefix("PHONICS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "phonics",
		Short:         "Phonics Master versus server and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnv(v, cmd.Flags())
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.port, "port", "", "port to listen on (env: PHONICS_PORT)")
	fs.StringVar(&opts.configPath, "config", "config/config.yaml", "path to YAML config (env: PHONICS_CONFIG)")
	fs.StringVar(&opts.env, "env", "", "development or production logging (env: PHONICS_ENV)")

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewLevelsCmd(opts))
	cmd.AddCommand(NewPlayCmd(opts))
	return cmd
}

// bindEnv lets PHONICS_* variables fill any flag not set on the command line.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if setErr := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); setErr != nil && err == nil {
				err = fmt.Errorf("flag --%s: %w", f.Name, setErr)
			}
		}
	})
	return err
}

// load reads the config file and builds the logger. The --env flag wins over
// the file.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if o.env != "" {
		cfg.Env = o.env
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}
