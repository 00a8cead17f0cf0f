package views

import (
	"fmt"
	"strconv"

	"github.com/a-h/templ"
	templruntime "github.com/a-h/templ/runtime"

	"github.com/chav-jf/speedy-green-flash/internal/relay"
)

const sinceLayout = "2006-01-02 15:04:05"

func presence(ok bool) templ.Component {
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
		if ok {
			_, err = buf.WriteString(`<span class="on">connected</span>`)
		} else {
			_, err = buf.WriteString(`<span class="off">waiting</span>`)
		}
		return err
	})
}

// Status lists the relay's rooms.
func Status(rooms []relay.RoomInfo) templ.Component {
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
		ctx = templ.ClearChildren(ctx)

		_, err = buf.WriteString(`<h1>Green Flash relay</h1>`)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			_, err = buf.WriteString(`<p>No active rooms. Create one with <code>POST /rooms</code>.</p>`)
			return err
		}
		_, err = buf.WriteString(`<table><thead><tr><th>Room</th><th>Display</th><th>Trigger</th><th>Relayed</th><th>Since</th><th></th></tr></thead><tbody>`)
		if err != nil {
			return err
		}
		for _, r := range rooms {
			_, err = buf.WriteString(`<tr><td>`)
			if err != nil {
				return err
			}
			var code string
			code, err = templ.JoinStringErrs(r.Code)
			if err != nil {
				return err
			}
			_, err = buf.WriteString(templ.EscapeString(code))
			if err != nil {
				return err
			}
			_, err = buf.WriteString(`</td><td>`)
			if err != nil {
				return err
			}
			err = presence(r.Display).Render(ctx, buf)
			if err != nil {
				return err
			}
			_, err = buf.WriteString(`</td><td>`)
			if err != nil {
				return err
			}
			err = presence(r.Trigger).Render(ctx, buf)
			if err != nil {
				return err
			}
			_, err = buf.WriteString(`</td><td>`)
			if err != nil {
				return err
			}
			_, err = buf.WriteString(templ.EscapeString(strconv.Itoa(r.Relayed)))
			if err != nil {
				return err
			}
			_, err = buf.WriteString(`</td><td>`)
			if err != nil {
				return err
			}
			_, err = buf.WriteString(templ.EscapeString(r.CreatedAt.UTC().Format(sinceLayout)))
			if err != nil {
				return err
			}
			_, err = buf.WriteString(`</td><td><a href="`)
			if err != nil {
				return err
			}
			var chartURL templ.SafeURL = templ.URL(fmt.Sprintf("/rooms/%s/chart", r.Code))
			_, err = buf.WriteString(templ.EscapeString(string(chartURL)))
			if err != nil {
				return err
			}
			_, err = buf.WriteString(`">chart</a></td></tr>`)
			if err != nil {
				return err
			}
		}
		_, err = buf.WriteString(`</tbody></table>`)
		return err
	})
}
