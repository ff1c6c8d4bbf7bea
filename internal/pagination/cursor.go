package pagination

import "net/url"

// Cursor is the request a Paginator will issue next. It belongs to one
// Paginator; strategies return modified copies rather than mutating it.
type Cursor struct {
	Endpoint string
	Params   url.Values
}

// Clone returns a copy whose Params can be modified freely
func (c Cursor) Clone() Cursor {
	out := Cursor{Endpoint: c.Endpoint}
	if c.Params != nil {
		out.Params = make(url.Values, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = append([]string(nil), v...)
		}
	}
	return out
}

func (c Cursor) withParam(key, value string) Cursor {
	out := c.Clone()
	if out.Params == nil {
		out.Params = url.Values{}
	}
	out.Params.Set(key, value)
	return out
}
