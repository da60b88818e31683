package httpclient

import (
	"encoding/json"
	"fmt"
)

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("httpclient: encode body: %w", err)
	}
	return raw, nil
}

func decodeJSON(data []byte, url string, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("httpclient: decode response from %s: %w", url, err)
	}
	return nil
}
