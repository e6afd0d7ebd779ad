package llm

import (
	"bytes"
	"encoding/json"
)

// UnparseableError marks a structured-output response whose decoded object
// could not be re-encoded as compact JSON (§4.2 response-unparseable); a
// reply the client fails to decode goes through classifyError instead. The
// Dispatcher never re-prompts a provider for a reformatted answer.
type UnparseableError struct{ cause error }

func NewUnparseableError(cause error) *UnparseableError { return &UnparseableError{cause: cause} }

func (e *UnparseableError) Error() string { return "response unparseable: " + e.cause.Error() }
func (e *UnparseableError) Unwrap() error  { return e.cause }

func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
