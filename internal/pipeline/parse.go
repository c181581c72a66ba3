package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	queryBlockPattern  = regexp.MustCompile(`(?s)\{\s*["']query_complete.*?\s*\]\s*\}`)
	intentBlockPattern = regexp.MustCompile(`(?s)\{\s*["']intent.*?\s*\}*\s*\}`)
)

// Reasons recorded when a model answer cannot be parsed.
const (
	ReasonNoJSONBlock          = "no_json_block_matched"
	ReasonMissingQueryComplete = "missing_query_complete"
	ReasonMissingIntent        = "missing_intent"
	ReasonAnswerNotString      = "answer_not_string"
	ReasonHTTPError            = "http_error"
)

// QueryInfo is the structured part of a query expansion answer.
type QueryInfo struct {
	QueryComplete *string  `json:"query_complete"`
	SearchQueries []string `json:"search_queries"`
}

// IntentCode is an intent number that may arrive as a JSON number or string.
type IntentCode string

// UnmarshalJSON accepts 201 or "201".
func (c *IntentCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = IntentCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("intent no must be a number or string: %w", err)
	}
	*c = IntentCode(n.String())
	return nil
}

// MarshalJSON writes numeric codes as numbers.
func (c IntentCode) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(c)); err == nil && strconv.Itoa(n) == string(c) {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// Intent resolves the code to a known intent.
func (c IntentCode) Intent() Intent {
	n, err := strconv.Atoi(strings.TrimSpace(string(c)))
	if err != nil {
		return Unclassified
	}
	return ParseIntent(n)
}

// IntentBlock is the classified intent.
type IntentBlock struct {
	No         IntentCode `json:"no"`
	IntentName string     `json:"intent_name"`
}

// IntentInfo is the structured part of an intent classification answer.
type IntentInfo struct {
	Intent *IntentBlock `json:"intent"`
}

// Stage names recorded on failure records.
const (
	StageExpandAPI    = "expand_api"
	StageExpandParse  = "expand_parse"
	StageIntentAPI    = "intent_api"
	StageIntentParse  = "intent_parse"
	StageGenerate     = "generate"
	kindValidationErr = "validation_error"
)

// ParseQueryAnswer extracts the query_complete block from a model answer.
func ParseQueryAnswer(answer string) Result[QueryInfo] {
	block := queryBlockPattern.FindString(answer)
	if block == "" {
		return Fail[QueryInfo](StageExpandParse, ReasonNoJSONBlock, "")
	}
	var info QueryInfo
	if err := decodeBlock(block, &info); err != nil {
		return Fail[QueryInfo](StageExpandParse, kindValidationErr, err.Error())
	}
	if info.QueryComplete == nil || strings.TrimSpace(*info.QueryComplete) == "" {
		return Fail[QueryInfo](StageExpandParse, ReasonMissingQueryComplete, "")
	}
	return Ok(info)
}

// ParseIntentAnswer extracts the intent block from a model answer.
func ParseIntentAnswer(answer string) Result[IntentInfo] {
	block := intentBlockPattern.FindString(answer)
	if block == "" {
		return Fail[IntentInfo](StageIntentParse, ReasonNoJSONBlock, "")
	}
	var info IntentInfo
	if err := decodeBlock(block, &info); err != nil {
		return Fail[IntentInfo](StageIntentParse, kindValidationErr, err.Error())
	}
	if info.Intent == nil {
		return Fail[IntentInfo](StageIntentParse, ReasonMissingIntent, "")
	}
	if info.Intent.No == "" {
		return Fail[IntentInfo](StageIntentParse, kindValidationErr, "no is required")
	}
	if info.Intent.IntentName == "" {
		return Fail[IntentInfo](StageIntentParse, kindValidationErr, "intent_name is required")
	}
	return Ok(info)
}

func decodeBlock(block string, v any) error {
	return json.Unmarshal([]byte(block), v)
}
