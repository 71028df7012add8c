package nlu

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"medcmd/src/logger"

	"github.com/bytedance/sonic"
	"github.com/xeipuuv/gojsonschema"
)

// ErrNoJSONObject is returned when a response holds no {...} block.
var ErrNoJSONObject = errors.New("no JSON object in response")

// ExtractJSONObject strips markdown code fences and returns the text between
// the first '{' and the last '}'.
func ExtractJSONObject(content string) (string, error) {
	content = strings.TrimSpace(content)

	if start := strings.Index(content, "```"); start >= 0 {
		body := content[start+3:]
		body = strings.TrimPrefix(body, "json")
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		content = strings.TrimSpace(body)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return content[start : end+1], nil
}

// DecodeJSON extracts the object in content, checks it against schema when
// one is given and decodes it into a T.
func DecodeJSON[T any](content string, schema *gojsonschema.Schema) (T, error) {
	var out T

	raw, err := ExtractJSONObject(content)
	if err != nil {
		return out, err
	}

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return out, fmt.Errorf("failed to validate response: %w", err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return out, fmt.Errorf("response does not match schema: %s", strings.Join(msgs, "; "))
		}
	}

	if err := sonic.UnmarshalString(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// ParseJSON is DecodeJSON without a schema that returns fallback on any failure.
func ParseJSON[T any](content string, fallback T) T {
	return parseWithSchema(content, nil, fallback)
}

func parseWithSchema[T any](content string, schema *gojsonschema.Schema, fallback T) T {
	out, err := DecodeJSON[T](content, schema)
	if err != nil {
		logger.Warn().Err(err).Str("response", truncate(content, 200)).Msg("Failed to parse generative response, using fallback")
		return fallback
	}
	return out
}

func mustSchema(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
