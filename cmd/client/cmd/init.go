package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mammuth/gravity-tasks/cmd/client/cmd/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Инициализировать локальную реплику",
	Long: `Команда init закрепляет за репликой uid пользователя и создает список Inbox.

Без --uid генерируется новый uid вида XXXX-XXXX-XXXX. Чтобы подключить
второе устройство к тем же данным, передайте ему uid первого:

  gravity init --uid 7K3M-9QX2-ABCD`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		uid, err := s.App.Init(cmd.Context(), uidFlag)
		if err != nil {
			return err
		}

		if s.Out.JSONMode() {
			return s.Out.JSON(map[string]string{"uid": uid})
		}
		s.Out.Success("Реплика инициализирована, uid: %s", uid)

		if err := s.App.CheckConnection(cmd.Context()); err != nil {
			s.Out.Warn("Сервер недоступен: %v", err)
			s.Out.Line("Можно работать офлайн, изменения уйдут при следующем gravity sync.")
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Показать текущий uid",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		uid, err := s.App.UID(cmd.Context())
		if err != nil {
			return err
		}
		if s.Out.JSONMode() {
			return s.Out.JSON(map[string]string{"uid": uid})
		}
		s.Out.Line(uid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd, whoamiCmd)
}
