package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/omochice/linkchat/internal/session"
)

// printer writes the parts of each snapshot that changed since the last one.
type printer struct {
	out       io.Writer
	printed   int
	roster    []string
	phase     session.Phase
	lastError string
}

func (p *printer) render(st session.State) {
	if st.Phase != p.phase {
		p.phase = st.Phase
		fmt.Fprintf(p.out, "*** %s ***\n", st.Phase)
	}

	names := make([]string, 0, len(st.Roster))
	for _, u := range st.Roster {
		names = append(names, u.Name)
	}
	if !slices.Equal(names, p.roster) {
		p.roster = names
		fmt.Fprintf(p.out, "*** %d online: %s ***\n", len(names), strings.Join(names, ", "))
	}

	for _, msg := range st.Transcript[p.printed:] {
		body := session.DisplayBody(msg.Body)
		if msg.SentAt != "" {
			fmt.Fprintf(p.out, "[%s] %s: %s\n", msg.SentAt, msg.Sender, body)
		} else {
			fmt.Fprintf(p.out, "%s: %s\n", msg.Sender, body)
		}
	}
	p.printed = len(st.Transcript)

	if st.LastError != p.lastError {
		p.lastError = st.LastError
		if st.LastError != "" {
			fmt.Fprintf(p.out, "!!! %s\n", st.LastError)
		}
	}
}
