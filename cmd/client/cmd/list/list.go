// Package list содержит команды работы со списками задач.
package list

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mammuth/gravity-tasks/cmd/client/cmd/types"
)

var showDeleted bool

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Управление списками",
	Long: `Списки группируют задачи. Список Inbox создается автоматически
и используется, когда активный список не выбран.`,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Показать списки",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		lists, err := s.App.Lists(cmd.Context(), showDeleted)
		if err != nil {
			return fmt.Errorf("ошибка получения списков: %w", err)
		}
		active, err := s.App.ActiveList(cmd.Context())
		if err != nil {
			return err
		}
		return s.Out.Lists(lists, active.ID)
	},
}

var addCmd = &cobra.Command{
	Use:   "add <название>",
	Short: "Создать список",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		l, err := s.App.CreateList(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("ошибка создания списка: %w", err)
		}
		return s.Out.Result(l, "Список %q создан (id: %s)", l.Name, l.ID)
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <название>",
	Short: "Переименовать список",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		l, err := s.App.RenameList(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("ошибка переименования списка: %w", err)
		}
		return s.Out.Result(l, "Список переименован в %q", l.Name)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Удалить список вместе с задачами",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		l, cascaded, err := s.App.DeleteList(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("ошибка удаления списка: %w", err)
		}
		if s.Out.JSONMode() {
			return s.Out.JSON(map[string]any{"list": l, "deleted_tasks": cascaded})
		}
		s.Out.Success("Список %q удален, задач удалено: %d", l.Name, cascaded)
		return nil
	},
}

var useCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Сделать список активным",
	Long:  "Новые задачи без --list попадают в активный список.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		l, err := s.App.SetActiveList(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return s.Out.Result(l, "Активный список: %s", l.Name)
	},
}

func init() {
	lsCmd.Flags().BoolVar(&showDeleted, "deleted", false, "показывать удаленные списки")

	ListCmd.AddCommand(lsCmd, addCmd, renameCmd, rmCmd, useCmd)
}
