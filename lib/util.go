package lib

import "fmt"
import "bytes"
import "strings"
import "encoding/json"

// GetStacktrace return stack-trace in human readable format, skipping
// the first `skip` frames.
func GetStacktrace(skip int, stack []byte) string {
	var buf bytes.Buffer
	lines := strings.Split(string(stack), "\n")
	if n := 1 + skip*2; n < len(lines) {
		buf.WriteString(lines[0] + "\n")
		lines = lines[n:]
	}
	for _, call := range lines {
		buf.WriteString(fmt.Sprintf("%s\n", call))
	}
	return buf.String()
}

// Prettystats uses json.MarshalIndent, if pretty is true, instead of
// json.Marshal. If Marshal return error Prettystats will panic.
func Prettystats(stats map[string]interface{}, pretty bool) string {
	if pretty {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			panic(err)
		}
		return string(data)
	}
	data, err := json.Marshal(stats)
	if err != nil {
		panic(err)
	}
	return string(data)
}
