package conflict

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

const (
	markerLocal  = "<<<<<<< local"
	markerSep    = "======="
	markerRemote = ">>>>>>> remote"
)

// Merge renders both sides between conflict markers.
func Merge(local, remote []byte, remoteVersion int64) []byte {
	var b bytes.Buffer
	b.WriteString(markerLocal + "\n")
	writeSection(&b, local)
	b.WriteString(markerSep + "\n")
	writeSection(&b, remote)
	fmt.Fprintf(&b, "%s (version %d)\n", markerRemote, remoteVersion)
	return b.Bytes()
}

func writeSection(b *bytes.Buffer, data []byte) {
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
}

// HasMarkers reports whether data still contains a conflict marker line.
func HasMarkers(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \r")
		if strings.HasPrefix(line, markerLocal) || strings.HasPrefix(line, markerRemote) || line == markerSep {
			return true
		}
	}
	return false
}
