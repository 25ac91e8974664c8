package tfm

import (
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/tfmlabs/tfmd/mathutil"
)

const defaultPageSize = 100

// Pagination is derived fresh from each page response. Fields the server
// omits fall back to a single-page default.
type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	TotalItems  int  `json:"totalItems"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

// envelope is the uniform wrapper all TFM endpoints respond with.
type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Pagination *Pagination     `json:"pagination"`
}

// parseEnvelope decodes a response body and resolves the success flag.
// Both malformed bodies and success=false envelopes surface as *APIError.
func parseEnvelope(b []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); nil != err {
		return nil, &APIError{Message: "malformed response envelope: " + err.Error()}
	}

	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "unknown API error"
		}
		return nil, &APIError{Message: msg}
	}

	return &env, nil
}

// items extracts the element array from the envelope data. Depending on the
// endpoint the array appears either directly under data or nested under
// data.items; both shapes are accepted.
func (e *envelope) items() []json.RawMessage {
	data := gjson.ParseBytes(e.Data)

	var arr []gjson.Result
	switch {
	case data.IsArray():
		arr = data.Array()
	case data.IsObject():
		if items := data.Get("items"); items.IsArray() {
			arr = items.Array()
		}
	}

	out := make([]json.RawMessage, len(arr))
	for i, v := range arr {
		out[i] = json.RawMessage(v.Raw)
	}
	return out
}

// pagination returns the page metadata with absent fields defaulted.
func (e *envelope) pagination() Pagination {
	p := Pagination{
		Page:        1,
		PageSize:    defaultPageSize,
		TotalItems:  0,
		TotalPages:  1,
		HasNext:     false,
		HasPrevious: false,
	}
	if nil == e.Pagination {
		return p
	}

	got := *e.Pagination
	if got.Page > 0 {
		p.Page = got.Page
	}
	if got.PageSize > 0 {
		p.PageSize = got.PageSize
	}
	p.TotalItems = got.TotalItems
	switch {
	case got.TotalPages > 0:
		p.TotalPages = got.TotalPages
	case got.TotalItems > 0:
		p.TotalPages = mathutil.CeilInts(got.TotalItems, p.PageSize)
	}
	p.HasNext = got.HasNext
	p.HasPrevious = got.HasPrevious
	return p
}
