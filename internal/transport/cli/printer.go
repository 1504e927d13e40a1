package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/agent"
	"github.com/sandevgo/tuskmem/internal/service/ui"
)

const maxResultPreview = 120

// Send runs one turn and prints its chunks to w as they arrive.
func Send(ctx context.Context, w io.Writer, engine TurnStarter, req agent.TurnRequest) (*core.TurnResult, error) {
	stream, err := engine.Start(ctx, req)
	if err != nil {
		fmt.Fprintln(w, ui.ErrorStyle.Render("error: ")+err.Error())
		return nil, err
	}
	defer stream.Close()

	p := &printer{w: w}
	for chunk := range stream.Chunks() {
		p.print(chunk)
	}
	return stream.Wait()
}

type printer struct {
	w io.Writer
	// midLine is set while streamed text has no trailing newline.
	midLine bool
}

func (p *printer) print(c core.Chunk) {
	switch c.Type {
	case core.ChunkText:
		fmt.Fprint(p.w, c.Text)
		p.midLine = !strings.HasSuffix(c.Text, "\n")

	case core.ChunkToolCall:
		p.newline()
		fmt.Fprintln(p.w, ui.ToolStyle.Render(fmt.Sprintf("→ %s %s", c.ToolCall.Function.Name, c.ToolCall.Function.Arguments)))

	case core.ChunkToolResult:
		p.newline()
		res := c.ToolResult
		if res.IsError() {
			fmt.Fprintln(p.w, ui.ToolStyle.Render("← "+res.Name+" ")+ui.ErrorStyle.Render(preview(res.Error)))
			return
		}
		fmt.Fprintln(p.w, ui.ToolStyle.Render("← "+res.Name+" ")+ui.DescStyle.Render(preview(string(res.Output))))

	case core.ChunkDone:
		if c.Result != nil && c.Result.Structured != nil && c.Result.Text == "" {
			p.newline()
			fmt.Fprint(p.w, string(c.Result.Structured))
			p.midLine = true
		}
		p.newline()

	case core.ChunkError:
		p.newline()
		fmt.Fprintln(p.w, ui.ErrorStyle.Render("error: ")+c.Err.Error())
	}
}

func (p *printer) newline() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > maxResultPreview {
		return string(r[:maxResultPreview-3]) + "..."
	}
	return s
}
