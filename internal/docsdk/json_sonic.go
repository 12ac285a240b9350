//go:build sonic

package docsdk

import "github.com/bytedance/sonic"

// for imroc/req
var (
	jsonMarshal   = sonic.Marshal
	jsonUnmarshal = sonic.Unmarshal
)
