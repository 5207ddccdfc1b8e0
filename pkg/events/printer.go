package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type printer struct {
	w        io.Writer
	partials bool
	verbose  bool
	// streams that printed at least one delta
	open map[string]bool
}

type PrinterOption func(*printer)

// WithPartials prints the deltas of every stream as they arrive.
func WithPartials(partials bool) PrinterOption {
	return func(p *printer) {
		p.partials = partials
	}
}

// WithVerbosePrinter also prints conversation lifecycle events as YAML.
func WithVerbosePrinter(verbose bool) PrinterOption {
	return func(p *printer) {
		p.verbose = verbose
	}
}

// FormatInstallProgress renders one install progress line.
func FormatInstallProgress(status string, percentage int64, completed int64, total int64, bytesPerSecond float64) string {
	if total <= 0 {
		return fmt.Sprintf("%-40s", status)
	}
	return fmt.Sprintf("%-20s %3d%% %10s / %-10s %10s/s",
		status,
		percentage,
		humanize.Bytes(uint64(completed)),
		humanize.Bytes(uint64(total)),
		humanize.Bytes(uint64(bytesPerSecond)),
	)
}

// PrinterFunc returns a watermill handler writing a human readable rendition
// of the events on a topic to w.
func PrinterFunc(w io.Writer, options ...PrinterOption) func(msg *message.Message) error {
	p := &printer{
		w:        w,
		partials: true,
		open:     map[string]bool{},
	}
	for _, o := range options {
		o(p)
	}

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			return err
		}
		return p.print(e)
	}
}

func (p *printer) print(e Event) error {
	var err error
	switch p_ := e.(type) {
	case *EventPartialCompletion:
		if !p.partials {
			return nil
		}
		p.open[p_.Metadata().StreamID] = true
		_, err = fmt.Fprintf(p.w, "%s", p_.Delta)

	case *EventFinal:
		if p.open[p_.Metadata().StreamID] && !strings.HasSuffix(p_.Text, "\n") {
			_, err = fmt.Fprintf(p.w, "\n")
		}
		delete(p.open, p_.Metadata().StreamID)

	case *EventError:
		delete(p.open, p_.Metadata().StreamID)
		_, err = fmt.Fprintf(p.w, "\n[error] %s\n", p_.ErrorString)

	case *EventInstallProgress:
		_, err = fmt.Fprintf(p.w, "\r%s", FormatInstallProgress(p_.Status, p_.Percentage, p_.Completed, p_.Total, p_.BytesPerSecond))

	case *EventInstallDone:
		_, err = fmt.Fprintf(p.w, "\n[i] installed %s\n", p_.Metadata().Model)

	case *EventInstallError:
		_, err = fmt.Fprintf(p.w, "\n[error] install of %s failed: %s\n", p_.Metadata().Model, p_.ErrorString)

	case *EventModelsRefreshed:
		if p_.ErrorString != "" {
			_, err = fmt.Fprintf(p.w, "[error] could not list models: %s\n", p_.ErrorString)
		}

	case *EventConversationCreated,
		*EventConversationSwitched,
		*EventLanguageChanged,
		*EventDirectiveAdded:
		if !p.verbose {
			return nil
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(e.Payload(), &fields); err != nil {
			return err
		}
		delete(fields, "type")
		v_, err := yaml.Marshal(fields)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "\n[%s]\n%s", e.Type(), v_)
		return err

	case *EventStreamStart, *EventMessageCommitted:
	}

	return err
}
