package main

import (
	"io"
	"os"

	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// printer writes command results as indented JSON, colourised when the
// destination is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// value encodes v and prints it.
func (p *printer) value(v any) error {
	data, err := api.Marshal(v)
	if err != nil {
		return err
	}
	return p.raw(data)
}

// raw prints a JSON document as received.
func (p *printer) raw(data []byte) error {
	if len(data) == 0 {
		data = []byte("null")
	}
	out := pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "  ", SortKeys: false})
	if p.color {
		out = pretty.Color(out, nil)
	}
	_, err := p.w.Write(out)
	return err
}
