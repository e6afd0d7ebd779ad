package analysis

import "encoding/json"

func encodeRepresentation(rep interface{}) (string, error) {
	b, err := json.Marshal(rep)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRepresentation(raw string, out interface{}) error {
	return json.Unmarshal([]byte(raw), out)
}
