// Package task содержит команды работы с задачами.
package task

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mammuth/gravity-tasks/cmd/client/cmd/types"
	"github.com/mammuth/gravity-tasks/internal/app/client"
	domain "github.com/mammuth/gravity-tasks/internal/domain/task"
)

var (
	listID      string
	status      string
	showAll     bool
	showDeleted bool
	description string
	title       string
)

var TaskCmd = &cobra.Command{
	Use:   "task",
	Short: "Управление задачами",
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Показать задачи",
	Long: `Показывает задачи активного списка в порядке позиции.
--all показывает задачи всех списков, --status фильтрует по статусу
(active, done, archived).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		f := client.TaskFilter{ListID: listID, IncludeDeleted: showDeleted}
		if f.ListID == "" && !showAll {
			active, err := s.App.ActiveList(cmd.Context())
			if err != nil {
				return err
			}
			f.ListID = active.ID
		}
		if status != "" {
			st, err := domain.ParseStatus(status)
			if err != nil {
				return err
			}
			f.Status = st
		}

		tasks, err := s.App.Tasks(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("ошибка получения задач: %w", err)
		}
		return s.Out.Tasks(tasks)
	},
}

var addCmd = &cobra.Command{
	Use:   "add <заголовок>",
	Short: "Добавить задачу",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		t, err := s.App.AddTask(cmd.Context(), strings.Join(args, " "), client.AddTaskOptions{
			ListID:      listID,
			Description: description,
		})
		if err != nil {
			return fmt.Errorf("ошибка создания задачи: %w", err)
		}
		return s.Out.Result(t, "Задача добавлена (id: %s)", t.ID)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Изменить заголовок или описание",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		var p client.TaskPatch
		if cmd.Flags().Changed("title") {
			p.Title = &title
		}
		if cmd.Flags().Changed("description") {
			p.Description = &description
		}
		if p.Title == nil && p.Description == nil {
			return fmt.Errorf("укажите --title или --description")
		}

		t, err := s.App.EditTask(cmd.Context(), args[0], p)
		if err != nil {
			return fmt.Errorf("ошибка изменения задачи: %w", err)
		}
		return s.Out.Result(t, "Задача %s изменена", t.ID)
	},
}

// statusCmd строит команду, применяющую одно действие к каждому id.
func statusCmd(use, short, done string, apply func(app *client.App, cmd *cobra.Command, id string) (*domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := types.FromContext(cmd.Context())
			if err != nil {
				return err
			}

			changed := make([]*domain.Task, 0, len(args))
			for _, id := range args {
				t, err := apply(s.App, cmd, id)
				if err != nil {
					return fmt.Errorf("задача %s: %w", id, err)
				}
				changed = append(changed, t)
			}

			if s.Out.JSONMode() {
				return s.Out.JSON(changed)
			}
			for _, t := range changed {
				s.Out.Success("%s: %s", done, t.Title)
			}
			return nil
		},
	}
}

var doneCmd = statusCmd("done", "Отметить выполненной", "Выполнено",
	func(app *client.App, cmd *cobra.Command, id string) (*domain.Task, error) {
		return app.MarkDone(cmd.Context(), id)
	})

var activateCmd = statusCmd("activate", "Вернуть в работу", "В работе",
	func(app *client.App, cmd *cobra.Command, id string) (*domain.Task, error) {
		return app.MarkActive(cmd.Context(), id)
	})

var archiveCmd = statusCmd("archive", "Переместить в архив", "В архиве",
	func(app *client.App, cmd *cobra.Command, id string) (*domain.Task, error) {
		return app.Archive(cmd.Context(), id)
	})

var rmCmd = statusCmd("rm", "Удалить задачу", "Удалено",
	func(app *client.App, cmd *cobra.Command, id string) (*domain.Task, error) {
		return app.DeleteTask(cmd.Context(), id)
	})

var mvCmd = &cobra.Command{
	Use:   "mv <id> <id списка>",
	Short: "Перенести задачу в другой список",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		t, err := s.App.MoveTask(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("ошибка переноса задачи: %w", err)
		}
		return s.Out.Result(t, "Задача перенесена в список %s", t.ListID)
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Задать порядок задач в списке",
	Long: `Задачи получают позиции в порядке перечисления: первая окажется наверху.
Задачи, не указанные в команде, сохраняют свои позиции.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		target := listID
		if target == "" {
			active, err := s.App.ActiveList(cmd.Context())
			if err != nil {
				return err
			}
			target = active.ID
		}

		tasks, err := s.App.ReorderTasks(cmd.Context(), target, args)
		if err != nil {
			return fmt.Errorf("ошибка изменения порядка: %w", err)
		}
		if s.Out.JSONMode() {
			return s.Out.JSON(tasks)
		}
		s.Out.Success("Порядок обновлен, задач: %d", len(tasks))
		return nil
	},
}

func init() {
	lsCmd.Flags().StringVarP(&listID, "list", "l", "", "id списка")
	lsCmd.Flags().StringVarP(&status, "status", "s", "", "фильтр по статусу")
	lsCmd.Flags().BoolVarP(&showAll, "all", "a", false, "задачи всех списков")
	lsCmd.Flags().BoolVar(&showDeleted, "deleted", false, "показывать удаленные задачи")

	addCmd.Flags().StringVarP(&listID, "list", "l", "", "id списка (по умолчанию активный)")
	addCmd.Flags().StringVarP(&description, "description", "d", "", "описание задачи")

	editCmd.Flags().StringVarP(&title, "title", "t", "", "новый заголовок")
	editCmd.Flags().StringVarP(&description, "description", "d", "", "новое описание")

	reorderCmd.Flags().StringVarP(&listID, "list", "l", "", "id списка (по умолчанию активный)")

	TaskCmd.AddCommand(lsCmd, addCmd, editCmd, doneCmd, activateCmd, archiveCmd, rmCmd, mvCmd, reorderCmd)
}
