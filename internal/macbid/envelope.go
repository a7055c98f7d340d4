package macbid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"lotwatch/internal/lots"
	"strconv"
)

var listKeys = []string{"data", "hits", "lots", "results", "items", "auctions"}
var totalKeys = []string{"total", "found", "total_count", "totalCount", "count"}
var pagesKeys = []string{"pages", "last_page", "total_pages", "totalPages"}

// envelope is a list of items plus whatever paging metadata came with it.
type envelope struct {
	Items []json.RawMessage
	Total int
	Pages int
}

func isArray(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '['
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

func readInt(raw json.RawMessage) int {
	var s lots.FlexString
	if json.Unmarshal(raw, &s) != nil {
		return 0
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return 0
	}
	return n
}

// decodeEnvelope finds the item list in a response body. The list may be the
// body itself or sit under one of listKeys, nested at most two levels deep.
func decodeEnvelope(body []byte) (envelope, error) {
	return decodeEnvelopeDepth(body, 0)
}

func decodeEnvelopeDepth(body []byte, depth int) (envelope, error) {
	if isArray(body) {
		var items []json.RawMessage
		err := json.Unmarshal(body, &items)
		if err != nil {
			return envelope{}, err
		}
		return envelope{Items: unwrapDocuments(items), Total: len(items)}, nil
	}
	if !isObject(body) {
		return envelope{}, fmt.Errorf("unexpected response body: %.80s", string(body))
	}

	var fields map[string]json.RawMessage
	err := json.Unmarshal(body, &fields)
	if err != nil {
		return envelope{}, err
	}

	var out envelope
	found := false
	for _, key := range listKeys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if isArray(value) {
			err = json.Unmarshal(value, &out.Items)
			if err != nil {
				return envelope{}, err
			}
			out.Items = unwrapDocuments(out.Items)
			found = true
			break
		}
		if isObject(value) && depth < 2 {
			nested, err := decodeEnvelopeDepth(value, depth+1)
			if err == nil {
				out = nested
				found = true
				break
			}
		}
	}
	if !found {
		return envelope{}, fmt.Errorf("no lot list in response with keys %v", keysOf(fields))
	}

	for _, key := range totalKeys {
		if value, ok := fields[key]; ok && out.Total == 0 {
			out.Total = readInt(value)
		}
	}
	for _, key := range pagesKeys {
		if value, ok := fields[key]; ok && out.Pages == 0 {
			out.Pages = readInt(value)
		}
	}
	if out.Total == 0 {
		out.Total = len(out.Items)
	}
	return out, nil
}

// unwrapDocuments replaces typesense style {"document": {...}} hits with
// the document itself.
func unwrapDocuments(items []json.RawMessage) []json.RawMessage {
	for i, item := range items {
		if !isObject(item) {
			continue
		}
		var hit struct {
			Document json.RawMessage `json:"document"`
		}
		if json.Unmarshal(item, &hit) == nil && isObject(hit.Document) {
			items[i] = hit.Document
		}
	}
	return items
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
