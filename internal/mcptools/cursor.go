package mcptools

import (
	"encoding/base64"
	"encoding/json"
)

// encodeCursor/decodeCursor give the file-oriented tools (file_slice,
// grep_context, text_search) a self-contained continuation token: they
// resume a scan by (file, line) rather than by the project-scoped
// cursorstore that read_pack uses, since their state is small enough to
// round-trip in the token itself.
func encodeCursor(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(token string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(token)
}
