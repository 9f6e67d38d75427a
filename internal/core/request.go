package core

import (
	"net/http"
	"sort"
	"strings"
)

// OutboundRequest describes one call to an E-utilities endpoint.
type OutboundRequest struct {
	ID        string            `json:"id"`
	Operation Operation         `json:"operation"`
	Database  string            `json:"db,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Session   *Session          `json:"session,omitempty"`
	Attempt   int               `json:"attempt"`
}

// Clone returns a copy with its own parameter map.
func (r OutboundRequest) Clone() OutboundRequest {
	out := r
	if r.Params != nil {
		out.Params = make(map[string]string, len(r.Params))
		for key, value := range r.Params {
			out.Params[key] = value
		}
	}
	if r.Session != nil {
		session := *r.Session
		out.Session = &session
	}
	return out
}

// Set assigns a parameter, ignoring empty values.
func (r *OutboundRequest) Set(key, value string) {
	key = strings.TrimSpace(key)
	if key == "" || strings.TrimSpace(value) == "" {
		return
	}
	if r.Params == nil {
		r.Params = make(map[string]string)
	}
	r.Params[key] = value
}

// ParamKeys returns parameter names in sorted order.
func (r OutboundRequest) ParamKeys() []string {
	keys := make([]string, 0, len(r.Params))
	for key := range r.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RawResponse is what the transport observed for a single attempt.
type RawResponse struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	ContentType   string
	RemoteMessage string
}
