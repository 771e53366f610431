package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mammuth/gravity-tasks/cmd/client/cmd/list"
	"github.com/mammuth/gravity-tasks/cmd/client/cmd/output"
	"github.com/mammuth/gravity-tasks/cmd/client/cmd/sync"
	"github.com/mammuth/gravity-tasks/cmd/client/cmd/task"
	"github.com/mammuth/gravity-tasks/cmd/client/cmd/types"
	"github.com/mammuth/gravity-tasks/internal/app/client"
	"github.com/mammuth/gravity-tasks/internal/app/client/config"
	"github.com/mammuth/gravity-tasks/internal/utils/logger"
)

var (
	cfgFile    string
	debug      bool
	jsonOutput bool
	serverURL  string
	uidFlag    string

	app *client.App
)

var rootCmd = &cobra.Command{
	Use:   "gravity",
	Short: "Gravity - списки задач, которые работают без сети",
	Long: `Gravity хранит списки и задачи в локальной реплике SQLite.
Все изменения сразу видны локально и попадают в очередь отправки,
а команда sync обменивается ими с сервером.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("ошибка чтения конфигурации: %w", err)
		}
	}
	if err := v.BindPFlag("server_address", cmd.Flags().Lookup("server")); err != nil {
		return err
	}
	if err := v.BindPFlag("uid", cmd.Flags().Lookup("uid")); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	log := newLogger(cfg)

	app, err = client.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(types.WithSession(cmd.Context(), &types.Session{
		App:      app,
		Out:      output.New(jsonOutput),
		Interval: cfg.SyncInterval,
	}))
	return nil
}

// newLogger пишет в файл с ротацией, а с --debug еще и в stderr.
func newLogger(cfg *config.Config) *slog.Logger {
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	if debug {
		return logger.NewWithWriter(logger.EnvDev, io.MultiWriter(os.Stderr, file))
	}
	return logger.NewWithWriter(logger.EnvProd, file)
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "дублировать журнал в stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера (host:port)")
	rootCmd.PersistentFlags().StringVar(&uidFlag, "uid", "", "uid пользователя вместо сохраненного")

	rootCmd.AddCommand(list.ListCmd)
	rootCmd.AddCommand(task.TaskCmd)
	rootCmd.AddCommand(sync.SyncCmd)
}
