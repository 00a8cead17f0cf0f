// Package views renders the relay's HTML pages with templ components.
package views

import (
	"github.com/a-h/templ"
	templruntime "github.com/a-h/templ/runtime"
)

const styles = `
body { font-family: system-ui, sans-serif; margin: 2rem; background: #111; color: #eee; }
h1 { color: #22c55e; }
table { border-collapse: collapse; }
th, td { padding: .4rem .8rem; border-bottom: 1px solid #333; text-align: left; }
.on { color: #22c55e; } .off { color: #ef4444; }
a { color: #93c5fd; }
`

// Layout wraps the children of ctx in the page shell.
func Layout(title string) templ.Component {
	return templruntime.GeneratedTemplate(func(in templruntime.GeneratedComponentInput) (err error) {
		w, ctx := in.Writer, in.Context
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		buf, isBuffer := templruntime.GetBuffer(w)
		if !isBuffer {
			defer func() {
				bufErr := templruntime.ReleaseBuffer(buf)
				if err == nil {
					err = bufErr
				}
			}()
		}
		ctx = templ.InitializeContext(ctx)
		children := templ.GetChildren(ctx)
		if children == nil {
			children = templ.NopComponent
		}
		ctx = templ.ClearChildren(ctx)

		_, err = buf.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>`)
		if err != nil {
			return err
		}
		var titleText string
		titleText, err = templ.JoinStringErrs(title)
		if err != nil {
			return err
		}
		_, err = buf.WriteString(templ.EscapeString(titleText))
		if err != nil {
			return err
		}
		_, err = buf.WriteString(`</title><style>` + styles + `</style></head><body>`)
		if err != nil {
			return err
		}
		err = children.Render(ctx, buf)
		if err != nil {
			return err
		}
		_, err = buf.WriteString(`</body></html>`)
		return err
	})
}
