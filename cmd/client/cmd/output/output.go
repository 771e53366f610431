// Package output печатает результаты команд: таблицей в терминал или JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

type Printer struct {
	w      io.Writer
	asJSON bool

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	faint  *color.Color
}

// New создает принтер для stdout. Цвет включается только в терминале.
func New(asJSON bool) *Printer {
	return NewWithWriter(os.Stdout, asJSON, term.IsTerminal(int(os.Stdout.Fd())))
}

func NewWithWriter(w io.Writer, asJSON, colored bool) *Printer {
	p := &Printer{
		w:      w,
		asJSON: asJSON,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		faint:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.green, p.yellow, p.red, p.faint} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) JSONMode() bool {
	return p.asJSON
}

// Result печатает v как JSON в режиме --json, иначе выводит msg.
func (p *Printer) Result(v any, format string, args ...any) error {
	if p.asJSON {
		return p.JSON(v)
	}
	p.Success(format, args...)
	return nil
}

func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) Success(format string, args ...any) {
	p.green.Fprint(p.w, "✓ ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) Warn(format string, args ...any) {
	p.yellow.Fprintf(p.w, "⚠ "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.red.Fprintf(p.w, "✗ "+format+"\n", args...)
}

func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Lists печатает списки, отмечая активный звездочкой.
func (p *Printer) Lists(lists []list.List, activeID string) error {
	if p.asJSON {
		return p.JSON(nonNil(lists))
	}
	if len(lists) == 0 {
		p.Line("Списков нет")
		return nil
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tНазвание\tРевизия\t")
	for _, l := range lists {
		mark := " "
		if l.ID == activeID {
			mark = "*"
		}
		name := l.Name
		if l.IsDeleted() {
			name = p.faint.Sprint(name + " (удален)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t\n", mark, l.ID, name, l.Revision)
	}
	return w.Flush()
}

func (p *Printer) Tasks(tasks []task.Task) error {
	if p.asJSON {
		return p.JSON(nonNil(tasks))
	}
	if len(tasks) == 0 {
		p.Line("Задач нет")
		return nil
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tЗадача\tСписок\tОбновлена\t")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			p.statusMark(t), t.ID, p.title(t), t.ListID, t.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (p *Printer) statusMark(t task.Task) string {
	switch {
	case t.IsDeleted():
		return p.red.Sprint("✗")
	case t.Status == task.StatusDone:
		return p.green.Sprint("✓")
	case t.Status == task.StatusArchived:
		return p.faint.Sprint("▪")
	default:
		return "○"
	}
}

func (p *Printer) title(t task.Task) string {
	title := t.Title
	if t.Description != "" {
		title += p.faint.Sprint(" / " + firstLine(t.Description))
	}
	return title
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "…"
	}
	return s
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
