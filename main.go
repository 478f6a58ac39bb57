package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"larder/ical"
	"larder/item"
	"larder/metric"
	"larder/route"
	"larder/scheduler"
	"larder/storage"
	"larder/utils"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	app := &cli.App{
		Name:  "larder",
		Usage: "Keep CalDAV tasks and events in a local SQLite larder.",
		Commands: []*cli.Command{
			daemonCommand(),
			pullCommand(),
			pushCommand(),
			addCommand(),
			doneCommand(),
			parseCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run the sync scheduler and the HTTP surface.",
		Action: func(c *cli.Context) error {
			as := utils.NewAppState()

			if err := storage.CreateSchema(as.BunDB); err != nil {
				slog.Error("can't create database schema", "error", err)
				os.Exit(1)
			}

			go metric.Init(as)

			scheduler.Start(as)

			// http server
			go func() {
				muxer := http.NewServeMux()
				muxer.Handle("GET /metrics", promhttp.Handler())
				route.Ical(muxer, as)
				route.Health(muxer, as)
				if err := http.ListenAndServe(":"+as.Config.GetPort(), muxer); err != nil {
					slog.Error("cannot start HTTP server", "error", err)
					as.AppCloseSignalChan <- syscall.SIGTERM
				}
			}()

			slog.Info("app is now running, press Ctrl+C to exit")

			signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			<-as.AppCloseSignalChan
			as.GracefulShutdown()

			slog.Info("Gracefully shutting down...")
			return nil
		},
	}
}

func pullCommand() *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Fetch every configured source into local storage once.",
		Action: func(c *cli.Context) error {
			as := utils.NewAppState()
			if err := storage.CreateSchema(as.BunDB); err != nil {
				return fmt.Errorf("can't create database schema: %w", err)
			}
			from, to := as.Config.RefreshWindow(time.Now())
			scheduler.Refresh(c.Context, as, from, to)
			return nil
		},
	}
}

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Upload pending local changes once.",
		Action: func(c *cli.Context) error {
			as := utils.NewAppState()
			if err := storage.CreateSchema(as.BunDB); err != nil {
				return fmt.Errorf("can't create database schema: %w", err)
			}
			scheduler.Push(c.Context, as)
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Create a local task, or an event when --start is given.",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "calendar", Usage: "URL or name of the target calendar; defaults to the only tracked one"},
			&cli.StringFlag{Name: "start", Usage: "event start, natural language works (\"tomorrow 5pm\")"},
			&cli.StringFlag{Name: "end", Usage: "event end, defaults to an hour after start"},
		},
		Action: func(c *cli.Context) error {
			name := utils.CleanupString(strings.Join(c.Args().Slice(), " "))
			if name == "" {
				return fmt.Errorf("a name is required")
			}

			as := utils.NewAppState()
			if err := storage.CreateSchema(as.BunDB); err != nil {
				return fmt.Errorf("can't create database schema: %w", err)
			}

			calendarURL, err := pickCalendar(c.Context, as, c.String("calendar"))
			if err != nil {
				return err
			}
			parent, err := url.Parse(calendarURL)
			if err != nil {
				return fmt.Errorf("can't parse calendar url: %w", err)
			}

			var created item.Item
			if startText := c.String("start"); startText != "" {
				now := time.Now().In(as.Config.GetLocation())
				startResult, err := as.When.Parse(startText, now)
				if err != nil || startResult == nil {
					return fmt.Errorf("can't understand start time %q", startText)
				}
				end := startResult.Time.Add(time.Hour)
				if endText := c.String("end"); endText != "" {
					endResult, err := as.When.Parse(endText, now)
					if err != nil || endResult == nil {
						return fmt.Errorf("can't understand end time %q", endText)
					}
					end = endResult.Time
				}
				created = item.NewEvent(name, startResult.Time, end, parent)
			} else {
				created = item.NewTask(name, parent)
			}

			if err := storage.NewItem(created, calendarURL, "").Upsert(c.Context, as.BunDB); err != nil {
				return err
			}
			slog.Info("item created", "uid", created.GetUID(), "name", created.GetName(), "calendar", calendarURL)
			return nil
		},
	}
}

func doneCommand() *cli.Command {
	return &cli.Command{
		Name:      "done",
		Usage:     "Mark a task completed, to be pushed on the next sync round.",
		ArgsUsage: "<uid>",
		Action: func(c *cli.Context) error {
			uid := c.Args().First()
			if uid == "" {
				return fmt.Errorf("a task uid is required")
			}

			as := utils.NewAppState()

			itemRow := new(storage.Item)
			if err := as.BunDB.NewSelect().
				Model(itemRow).
				Where("uid = ?", uid).
				Scan(c.Context); err != nil {
				return fmt.Errorf("can't find item %s: %w", uid, err)
			}

			parsed, err := itemRow.ToItem()
			if err != nil {
				return err
			}
			task, ok := parsed.(*item.Task)
			if !ok {
				return fmt.Errorf("item %s is an event, only tasks can be completed", uid)
			}

			now := time.Now().UTC()
			task.SetCompletion(item.Completed(&now))
			if err := storage.NewItem(task, itemRow.CalendarURL, "").Upsert(c.Context, as.BunDB); err != nil {
				return err
			}
			slog.Info("task completed", "uid", task.UID, "name", task.Name)
			return nil
		},
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Parse one iCalendar document and print it re-serialized.",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "file:///dev/stdin", Usage: "item URL to anchor diagnostics to"},
		},
		Action: func(c *cli.Context) error {
			content, err := func() ([]byte, error) {
				if path := c.Args().First(); path != "" {
					return os.ReadFile(path)
				}
				return io.ReadAll(os.Stdin)
			}()
			if err != nil {
				return err
			}

			itemURL, err := url.Parse(c.String("url"))
			if err != nil {
				return fmt.Errorf("can't parse item url: %w", err)
			}

			parsed, err := ical.Parse(string(content), itemURL, item.NotSynced())
			if err != nil {
				return err
			}
			switch v := parsed.(type) {
			case *item.Task:
				slog.Info("parsed a task", "uid", v.UID, "name", v.Name, "completion", v.Completion.String())
			case *item.Event:
				slog.Info("parsed an event", "uid", v.UID, "name", v.Name, "start", v.Start, "end", v.End)
			}

			fmt.Print(ical.Serialize(parsed))
			return nil
		},
	}
}

// pickCalendar resolves the target calendar for a local edit: the
// given URL or name when provided, the only tracked calendar
// otherwise.
func pickCalendar(ctx context.Context, as *utils.AppState, choice string) (string, error) {
	calendars := []storage.Calendar{}
	if err := as.BunDB.NewSelect().Model(&calendars).Scan(ctx); err != nil {
		return "", fmt.Errorf("can't list calendars: %w", err)
	}
	if len(calendars) == 0 {
		return "", fmt.Errorf("no tracked calendars yet, run pull first")
	}
	if choice == "" {
		if len(calendars) == 1 {
			return calendars[0].URL, nil
		}
		return "", fmt.Errorf("%d calendars tracked, pick one with --calendar", len(calendars))
	}
	for _, cal := range calendars {
		if cal.URL == choice || cal.Name == choice {
			return cal.URL, nil
		}
	}
	return "", fmt.Errorf("no tracked calendar matches %q", choice)
}
