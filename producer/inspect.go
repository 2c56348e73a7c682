package producer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	dataTypeNDJSON = "application/x-ndjson"
	dataTypeJSON   = "application/json"
)

// Inspection describes uploaded content before it is encoded.
type Inspection struct {
	DataType string `json:"data_type"`
	// Records counts parseable lines of NDJSON content, zero for other types.
	Records     int `json:"records"`
	ParseErrors int `json:"parse_errors"`
}

// inspectContent sniffs the data type. A single JSON document is JSON, content
// with JSON object lines is NDJSON, anything else falls back to
// http.DetectContentType.
func inspectContent(data []byte) (Inspection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' && trimmed[0] != '[' {
		return Inspection{DataType: http.DetectContentType(data)}, nil
	}

	if json.Valid(trimmed) {
		return Inspection{DataType: dataTypeJSON}, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var result Inspection
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			result.ParseErrors++
			continue
		}
		result.Records++
	}
	if err := scanner.Err(); err != nil {
		return Inspection{}, err
	}

	if result.Records > 0 {
		result.DataType = dataTypeNDJSON
	} else {
		result.DataType = http.DetectContentType(data)
	}

	return result, nil
}
