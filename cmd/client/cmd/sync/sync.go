// Package sync содержит команды синхронизации реплики с сервером.
package sync

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mammuth/gravity-tasks/cmd/client/cmd/output"
	"github.com/mammuth/gravity-tasks/cmd/client/cmd/types"
	"github.com/mammuth/gravity-tasks/internal/app/client"
)

var fullPull bool

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизировать с сервером",
	Long: `Один цикл синхронизации: сначала очередь локальных изменений
отправляется на сервер, затем читаются изменения с момента прошлого цикла.

--full сбрасывает закладку и перечитывает все данные с сервера.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		if fullPull {
			if err := s.App.ResetBookmark(cmd.Context()); err != nil {
				return err
			}
		}

		res, err := s.App.Sync(cmd.Context())
		if err != nil {
			if errors.Is(err, client.ErrTransport) {
				s.Out.Warn("Сервер недоступен, изменения остались в очереди")
			}
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}
		return printResult(s.Out, res)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать состояние синхронизации",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		st, err := s.App.SyncStatus(cmd.Context())
		if err != nil {
			return err
		}
		if s.Out.JSONMode() {
			return s.Out.JSON(st)
		}

		s.Out.Line("uid:                %s", st.UID)
		s.Out.Line("Ожидают отправки:   %d", st.Pending)
		s.Out.Line("Закладка:           %s", formatTime(st.Bookmark))

		if err := s.App.CheckConnection(cmd.Context()); err != nil {
			s.Out.Error("Сервер: %v", err)
		} else {
			s.Out.Success("Сервер доступен")
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Синхронизироваться при каждом изменении на сервере",
	Long: `Держит соединение с лентой изменений сервера и запускает цикл
синхронизации на каждое событие, а также периодически по таймеру.
Завершается по Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if s.Interval > 0 {
			if _, err := s.App.StartAutoSync(ctx, s.Interval); err != nil {
				return err
			}
		}

		s.Out.Line("Ожидание изменений, Ctrl+C для выхода")
		err = s.App.Watch(ctx, func(res *client.SyncResult, err error) {
			switch {
			case errors.Is(err, client.ErrSyncInProgress):
			case err != nil:
				s.Out.Error("Синхронизация: %v", err)
			default:
				_ = printResult(s.Out, res)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Показать очередь неотправленных изменений",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		entries, err := s.App.OutboxEntries(cmd.Context())
		if err != nil {
			return err
		}
		if s.Out.JSONMode() {
			if entries == nil {
				entries = []client.Entry{}
			}
			return s.Out.JSON(entries)
		}
		if len(entries) == 0 {
			s.Out.Line("Очередь пуста")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tСущность\tОперация\tID\tПопыток\tОшибка")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.Entity, e.Op, e.EntityID, e.RetryCount, e.LastError)
		}
		return w.Flush()
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <номер>",
	Short: "Удалить запись из очереди без отправки",
	Long: `Используйте, когда сервер постоянно отклоняет запись, например
при конфликте владения id. Локальная строка остается до полного чтения (sync --full).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("неверный номер записи: %s", args[0])
		}
		if err := s.App.DropOutboxEntry(cmd.Context(), id); err != nil {
			return fmt.Errorf("ошибка удаления записи: %w", err)
		}
		return s.Out.Result(map[string]int64{"dropped": id}, "Запись %d удалена из очереди", id)
	},
}

func printResult(out *output.Printer, res *client.SyncResult) error {
	if out.JSONMode() {
		return out.JSON(res)
	}

	out.Success("Синхронизация завершена за %v", res.Duration.Round(time.Millisecond))
	out.Line("  Отправлено: списков %d, задач %d", res.PushedLists, res.PushedTasks)
	out.Line("  Получено:   списков %d, задач %d", res.PulledLists, res.PulledTasks)
	for _, r := range res.Rejected {
		out.Warn("Отклонено #%d %s %s: %s", r.EntryID, r.Entity, r.EntityID, r.Reason)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "нет"
	}
	return t.Local().Format(time.DateTime)
}

func init() {
	SyncCmd.Flags().BoolVar(&fullPull, "full", false, "перечитать все данные с сервера")

	outboxCmd.AddCommand(dropCmd)
	SyncCmd.AddCommand(statusCmd, watchCmd, outboxCmd)
}
