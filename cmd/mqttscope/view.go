package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nugget/mqttscope/internal/events"
	"github.com/nugget/mqttscope/internal/payload"
	"github.com/nugget/mqttscope/internal/snapshot"
)

// lineView appends each event to w. Text output separates events with a
// blank line so multi-line payloads stay readable; json output writes one
// object per line.
type lineView struct {
	w      io.Writer
	format string
	n      int
}

func newLineView(w io.Writer, format string) *lineView {
	return &lineView{w: w, format: format}
}

func (v *lineView) render(e events.Event) error {
	if v.format == "json" {
		return json.NewEncoder(v.w).Encode(e)
	}
	sep := ""
	if v.n > 0 {
		sep = "\n"
	}
	v.n++
	_, err := fmt.Fprintf(v.w, "%s%s\n", sep, e.Line())
	return err
}

// tableView renders the snapshot as a topic table. Status events are
// printed as they arrive; message events only show up through the
// table. A redraw is skipped when the store has not changed since the
// last one, whether or not the message events made it through the bus.
type tableView struct {
	w       io.Writer
	format  string
	maxCell int

	drawn   bool
	version uint64
}

func newTableView(w io.Writer, format string, maxCell int) *tableView {
	return &tableView{w: w, format: format, maxCell: maxCell}
}

func (v *tableView) status(e events.Event) error {
	if e.Level == events.LevelMessage {
		return nil
	}
	if v.format == "json" {
		return json.NewEncoder(v.w).Encode(e)
	}
	_, err := fmt.Fprintln(v.w, e.Line())
	return err
}

// tableRow is the json form of one snapshot entry.
type tableRow struct {
	Topic string        `json:"topic"`
	Kind  string        `json:"kind"`
	Value payload.Value `json:"value"`
}

func (v *tableView) render(store *snapshot.Store) error {
	version := store.Version()
	if v.drawn && version == v.version {
		return nil
	}
	v.drawn, v.version = true, version
	entries := store.Entries()

	if v.format == "json" {
		rows := make([]tableRow, len(entries))
		for i, e := range entries {
			rows[i] = tableRow{Topic: e.Topic, Kind: e.Value.Kind().String(), Value: e.Value}
		}
		return json.NewEncoder(v.w).Encode(map[string]any{
			"ts":     time.Now().UTC().Format(time.RFC3339),
			"topics": rows,
		})
	}
	return writeTable(v.w, entries, v.maxCell)
}

// writeTable writes entries as aligned TOPIC / KIND / VALUE columns.
func writeTable(w io.Writer, entries []snapshot.Entry, maxCell int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TOPIC\tKIND\tVALUE\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Topic, e.Value.Kind(), e.Value.Summary(maxCell))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d topics)\n\n", len(entries))
	return err
}
