package eutils

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

// SearchResult holds the fields of an ESearch or EPost reply that drive
// history sessions and paging.
type SearchResult struct {
	Count    int      `json:"count"`
	RetMax   int      `json:"retmax"`
	RetStart int      `json:"retstart"`
	IDs      []string `json:"ids,omitempty"`
	WebEnv   string   `json:"webenv,omitempty"`
	QueryKey string   `json:"query_key,omitempty"`
}

// Session converts the reply into a history session for db.
func (r SearchResult) Session(db string) (core.Session, bool) {
	session := core.Session{
		Database:    strings.ToLower(strings.TrimSpace(db)),
		WebEnv:      r.WebEnv,
		QueryKey:    r.QueryKey,
		RecordCount: r.Count,
	}
	return session, session.Valid()
}

// DecodeSearch reads an ESearch reply in JSON or XML form.
func DecodeSearch(body []byte) (SearchResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return SearchResult{}, errors.New("empty search response")
	}
	if trimmed[0] == '{' {
		return decodeSearchJSON(trimmed)
	}
	return decodeSearchXML(trimmed)
}

// DecodePost reads an EPost reply. EPost only answers in XML.
func DecodePost(body []byte) (SearchResult, error) {
	var doc struct {
		QueryKey string `xml:"QueryKey"`
		WebEnv   string `xml:"WebEnv"`
		Error    string `xml:"ERROR"`
	}
	if err := unmarshalXML(body, &doc); err != nil {
		return SearchResult{}, fmt.Errorf("decode post response: %w", err)
	}
	if doc.Error != "" {
		return SearchResult{}, errors.New(strings.TrimSpace(doc.Error))
	}
	return SearchResult{
		WebEnv:   strings.TrimSpace(doc.WebEnv),
		QueryKey: strings.TrimSpace(doc.QueryKey),
	}, nil
}

// DecodeDatabases reads the database list from an EInfo reply without db.
func DecodeDatabases(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty einfo response")
	}

	var names []string
	if trimmed[0] == '{' {
		var doc struct {
			Result struct {
				DBList []string `json:"dblist"`
			} `json:"einforesult"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode einfo response: %w", err)
		}
		names = doc.Result.DBList
	} else {
		var doc struct {
			DBList []string `xml:"DbList>DbName"`
		}
		if err := unmarshalXML(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode einfo response: %w", err)
		}
		names = doc.DBList
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("einfo response lists no databases")
	}
	return out, nil
}

// ExtractError returns the error message an E-utilities body reports, or
// the empty string when the body carries none. Bodies that are neither JSON
// nor XML are never treated as errors.
func ExtractError(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{':
		return jsonError(trimmed)
	case '<':
		return xmlError(trimmed)
	default:
		return ""
	}
}

// SessionExpired reports whether a remote message means the history
// server no longer knows the WebEnv or query key.
func SessionExpired(message string) bool {
	value := strings.ToLower(message)
	if value == "" {
		return false
	}
	for _, marker := range []string{
		"unable to obtain query",
		"cannot retrieve query",
		"cannot get query",
		"query key is empty",
	} {
		if strings.Contains(value, marker) {
			return true
		}
	}
	return strings.Contains(value, "webenv") &&
		(strings.Contains(value, "invalid") || strings.Contains(value, "not found") || strings.Contains(value, "expired"))
}

func decodeSearchJSON(body []byte) (SearchResult, error) {
	var doc struct {
		Result struct {
			Count    string   `json:"count"`
			RetMax   string   `json:"retmax"`
			RetStart string   `json:"retstart"`
			IDs      []string `json:"idlist"`
			WebEnv   string   `json:"webenv"`
			QueryKey string   `json:"querykey"`
			Error    string   `json:"ERROR"`
		} `json:"esearchresult"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if doc.Error != "" {
		return SearchResult{}, errors.New(doc.Error)
	}
	if doc.Result.Error != "" {
		return SearchResult{}, errors.New(doc.Result.Error)
	}
	return buildSearchResult(doc.Result.Count, doc.Result.RetMax, doc.Result.RetStart, doc.Result.IDs, doc.Result.WebEnv, doc.Result.QueryKey)
}

func decodeSearchXML(body []byte) (SearchResult, error) {
	var doc struct {
		Count    string   `xml:"Count"`
		RetMax   string   `xml:"RetMax"`
		RetStart string   `xml:"RetStart"`
		IDs      []string `xml:"IdList>Id"`
		WebEnv   string   `xml:"WebEnv"`
		QueryKey string   `xml:"QueryKey"`
		Error    string   `xml:"ERROR"`
	}
	if err := unmarshalXML(body, &doc); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if doc.Error != "" {
		return SearchResult{}, errors.New(strings.TrimSpace(doc.Error))
	}
	return buildSearchResult(doc.Count, doc.RetMax, doc.RetStart, doc.IDs, doc.WebEnv, doc.QueryKey)
}

func buildSearchResult(count, retMax, retStart string, ids []string, webEnv, queryKey string) (SearchResult, error) {
	result := SearchResult{
		IDs:      ids,
		WebEnv:   strings.TrimSpace(webEnv),
		QueryKey: strings.TrimSpace(queryKey),
	}
	var err error
	if result.Count, err = atoiField("count", count); err != nil {
		return SearchResult{}, err
	}
	if result.RetMax, err = atoiField("retmax", retMax); err != nil {
		return SearchResult{}, err
	}
	if result.RetStart, err = atoiField("retstart", retStart); err != nil {
		return SearchResult{}, err
	}
	return result, nil
}

func atoiField(name, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return n, nil
}

func jsonError(body []byte) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if message := jsonString(doc["error"]); message != "" {
		return message
	}
	if message := jsonString(doc["ERROR"]); message != "" {
		return message
	}
	for _, key := range []string{"esearchresult", "einforesult", "elinkresult"} {
		var nested map[string]json.RawMessage
		if raw, ok := doc[key]; ok && json.Unmarshal(raw, &nested) == nil {
			if message := jsonString(nested["ERROR"]); message != "" {
				return message
			}
		}
	}
	// ESummary reports failures as a bare list of strings.
	if raw, ok := doc["esummaryresult"]; ok {
		var messages []string
		if json.Unmarshal(raw, &messages) == nil && len(messages) > 0 {
			return strings.Join(messages, "; ")
		}
	}
	return ""
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func xmlError(body []byte) string {
	decoder := newXMLDecoder(body)
	for {
		token, err := decoder.Token()
		if err != nil {
			return ""
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "ERROR" {
			continue
		}
		var message string
		if err := decoder.DecodeElement(&message, &start); err != nil {
			return ""
		}
		if message = strings.TrimSpace(message); message != "" {
			return message
		}
	}
}

func unmarshalXML(body []byte, v any) error {
	err := newXMLDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return errors.New("empty document")
	}
	return err
}

func newXMLDecoder(body []byte) *xml.Decoder {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return decoder
}
