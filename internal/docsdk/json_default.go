//go:build !sonic

package docsdk

import "github.com/goccy/go-json"

// for imroc/req
var (
	jsonMarshal   = json.Marshal
	jsonUnmarshal = json.Unmarshal
)
