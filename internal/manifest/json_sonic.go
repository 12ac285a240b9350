//go:build sonic

package manifest

import "github.com/bytedance/sonic"

var (
	jsonMarshalIndent = sonic.ConfigStd.MarshalIndent
	jsonUnmarshal     = sonic.ConfigStd.Unmarshal
)
