package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/helpers"
	"github.com/go-go-golems/grillo/pkg/language"
)

const chatHelp = `commands:
  /new               start a new conversation (reuses an empty one)
  /switch <id|last>  switch conversation
  /list              list conversations
  /lang <code>       change the response language
  /langs             list the supported languages
  /context <text>    add context to the conversation
  /models            list the models on the server
  /model <name>      select the model
  /install <name>    download a model
  /history           show the current conversation
  /quit              exit`

func NewChatCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with a model",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	ret.Flags().Bool("render", true, "Render answers as markdown when stdout is a terminal")
	ret.Flags().Bool("print-raw-events", false, "Print every event as JSON to stderr")
	return ret
}

func runChat(cmd *cobra.Command, args []string) error {
	render, _ := cmd.Flags().GetBool("render")
	printRawEvents, _ := cmd.Flags().GetBool("print-raw-events")

	router, err := events.NewEventRouter(
		events.WithLogger(helpers.NewWatermill(log.Logger)),
		events.WithDumpWriter(os.Stderr),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	m, _, err := newManager(chat.WithEventSink(router.Sink(events.DefaultTopic)))
	if err != nil {
		return err
	}

	r := &repl{
		manager: m,
		out:     cmd.OutOrStdout(),
		render:  render && isatty.IsTerminal(os.Stdout.Fd()),
		ui: &input.UI{
			Writer: os.Stdout,
			Reader: os.Stdin,
		},
	}

	router.AddHandler("grillo-printer", events.DefaultTopic, events.PrinterFunc(
		r.out,
		events.WithPartials(!r.render),
		events.WithVerbosePrinter(viper.GetBool("verbose")),
	))
	if printRawEvents {
		router.AddHandler("grillo-raw", events.DefaultTopic, router.DumpRawEvents)
	}

	eg := errgroup.Group{}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		defer m.Close()
		return r.loop(ctx)
	})

	return eg.Wait()
}

type repl struct {
	manager *chat.Manager
	out     io.Writer
	render  bool
	ui      *input.UI
}

func (r *repl) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *repl) prompt() string {
	model := r.manager.Catalog().Selected()
	if model == "" {
		model = "no model"
	}
	return fmt.Sprintf("\n[%s %s] >", model, r.manager.Language().Flag)
}

func (r *repl) loop(ctx context.Context) error {
	if r.manager.Catalog().Selected() == "" {
		models := r.manager.ListModels(ctx)
		if len(models) > 0 {
			r.manager.SelectModel(models[0].FullName())
		}
	}
	r.printf("type /help for commands\n")

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.ui.Ask(r.prompt(), &input.Options{
			HideOrder: true,
			Loop:      false,
		})
		if err != nil {
			// interrupt or end of input
			log.Debug().Err(err).Msg("leaving chat")
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				r.printf("error: %s\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func (r *repl) send(ctx context.Context, text string) {
	// ctrl-c cancels the answer, not the program
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	h, err := r.manager.SendMessage(sendCtx, text)
	if err != nil {
		r.printf("error: %s\n", err)
		return
	}
	// deltas and errors are printed from the stream events
	msg, err := h.Wait()
	if err != nil || !r.render {
		return
	}
	rendered, err := glamour.Render(msg.Text, "dark")
	if err != nil {
		log.Warn().Err(err).Msg("could not render answer")
		r.printf("%s\n", msg.Text)
		return
	}
	r.printf("%s", rendered)
}

func argument(line string) string {
	_, rest, _ := strings.Cut(line, " ")
	return strings.TrimSpace(rest)
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, _, _ := strings.Cut(line, " ")
	arg := argument(line)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		r.printf("%s\n", chatHelp)

	case "/new":
		r.printf("conversation %s\n", r.manager.NewConversation())

	case "/switch":
		if arg == "" || arg == "last" {
			id, err := r.manager.SwitchToLast()
			if err != nil {
				return false, err
			}
			r.printf("conversation %s\n", id)
			return false, nil
		}
		if err := r.manager.SwitchTo(arg); err != nil {
			return false, err
		}
		r.printf("conversation %s\n", arg)

	case "/list":
		active := r.manager.Store().ActiveID()
		for _, c := range r.manager.Conversations() {
			marker := " "
			if c.ID == active {
				marker = "*"
			}
			title := c.Title()
			if title == "" {
				title = "(untitled)"
			}
			r.printf("%s %s %3d  %s\n", marker, c.ID, len(c.Messages.Transcript()), title)
		}

	case "/lang":
		if arg == "" {
			r.printf("%s %s\n", r.manager.Language().Flag, r.manager.Language().Name)
			return false, nil
		}
		if _, err := r.manager.ChangeLanguage(arg); err != nil {
			return false, err
		}
		l := r.manager.Language()
		r.printf("language: %s %s\n", l.Flag, l.Name)

	case "/langs":
		current := r.manager.Language().Code
		for _, l := range language.Supported() {
			marker := " "
			if l.Code == current {
				marker = "*"
			}
			r.printf("%s %-6s %s %s\n", marker, l.Code, l.Flag, l.Name)
		}

	case "/context":
		if err := r.manager.AddContext(arg); err != nil {
			return false, err
		}

	case "/models":
		models := r.manager.ListModels(ctx)
		if r.manager.Catalog().Err() != nil {
			// reported by the models-refreshed event
			return false, nil
		}
		return false, printModels(r.out, models, r.manager.Catalog().Selected())

	case "/model":
		if arg == "" {
			r.printf("%s\n", r.manager.Catalog().Selected())
			return false, nil
		}
		r.manager.SelectModel(arg)

	case "/install":
		if _, err := r.manager.InstallModel(ctx, arg); err != nil {
			return false, err
		}

	case "/history":
		c, ok := r.manager.Store().Active()
		if !ok {
			return false, nil
		}
		for _, m := range c.Messages.Transcript() {
			r.printf("%s\n", m.String())
		}

	default:
		r.printf("unknown command %s\n%s\n", name, chatHelp)
	}

	return false, nil
}
