package agiloft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Record is a contract record. The field set is server-defined and depends
// on the fields requested, so records are decoded as generic maps.
type Record map[string]any

// DefaultContractFields are the contract fields requested when a search
// does not name its own.
var DefaultContractFields = []string{
	"id", "record_type", "contract_title1", "company_name", "date_created",
	"date_submitted", "date_signed", "contract_amount", "contract_end_date",
	"contract_term_in_months", "internal_contract_owner",
}

// DefaultDeleteRule controls how linked records are handled on delete.
const DefaultDeleteRule = "UNLINK_WHERE_POSSIBLE_OTHERWISE_DELETE"

// SearchQuery describes one page of a contract search.
type SearchQuery struct {
	// Query is the Agiloft search expression; empty matches all records.
	Query string

	// Fields lists the fields to return. Defaults to DefaultContractFields.
	Fields []string

	// Offset and Limit select the page. A Limit of 0 lets the server
	// apply its own page size.
	Offset int
	Limit  int
}

// searchEnvelope is the response wrapper the search endpoint returns.
type searchEnvelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// SearchContracts runs one page of a contract search.
func (c *Client) SearchContracts(ctx context.Context, q SearchQuery) ([]Record, error) {
	fields := q.Fields
	if len(fields) == 0 {
		fields = DefaultContractFields
	}

	params := url.Values{}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body := map[string]any{
		"search": "",
		"field":  fields,
		"query":  q.Query,
	}

	raw, err := c.Execute(ctx, http.MethodPost, "/contract/search", params, body)
	if err != nil {
		return nil, err
	}

	var env searchEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Body: string(raw), Err: fmt.Errorf("decode search response: %w", err)}
	}
	// The search endpoint always reports success explicitly; a response
	// without the field is a failure.
	if env.Success == nil || !*env.Success {
		return nil, &APIError{Body: string(raw), Err: fmt.Errorf("search failed: %s", orUnknown(env.Message))}
	}

	var records []Record
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &records); err != nil {
			return nil, &APIError{Body: string(raw), Err: fmt.Errorf("decode search result: %w", err)}
		}
	}
	return records, nil
}

// GetContract fetches a single contract by ID. When fields are given the
// record is filtered client-side; the API does not filter on GET.
func (c *Client) GetContract(ctx context.Context, id int, fields ...string) (Record, error) {
	params := url.Values{}
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}

	raw, err := c.Execute(ctx, http.MethodGet, fmt.Sprintf("/contract/%d", id), params, nil)
	if err != nil {
		return nil, err
	}

	record, err := decodeRecord(raw)
	if err != nil {
		return nil, &APIError{Body: string(raw), Err: err}
	}

	if len(fields) > 0 {
		filtered := Record{}
		for _, f := range fields {
			if v, ok := record[f]; ok {
				filtered[f] = v
			}
		}
		return filtered, nil
	}
	return record, nil
}

// decodeRecord extracts a contract from the response. The API is not
// consistent: the record may sit under "result" or "contract", be the
// top-level object, or arrive as a one-element list.
func decodeRecord(raw json.RawMessage) (Record, error) {
	var record Record
	if err := json.Unmarshal(raw, &record); err == nil {
		if nested, ok := record["result"].(map[string]any); ok {
			return Record(nested), nil
		}
		if nested, ok := record["contract"].(map[string]any); ok {
			return Record(nested), nil
		}
		if _, ok := record["id"]; ok {
			return record, nil
		}
		return nil, fmt.Errorf("no contract in response")
	}

	var list []Record
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0], nil
	}
	return nil, fmt.Errorf("unexpected contract response format")
}

// writeEnvelope is the response wrapper for create/update/delete.
type writeEnvelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// CreateContract creates a new contract and returns the decoded response.
func (c *Client) CreateContract(ctx context.Context, data Record) (Record, error) {
	raw, err := c.Execute(ctx, http.MethodPost, "/contract", nil, data)
	if err != nil {
		return nil, err
	}
	return checkWriteResponse(raw, "create", false)
}

// UpdateContract updates an existing contract and returns the decoded
// response.
func (c *Client) UpdateContract(ctx context.Context, id int, data Record) (Record, error) {
	raw, err := c.Execute(ctx, http.MethodPut, fmt.Sprintf("/contract/%d", id), nil, data)
	if err != nil {
		return nil, err
	}
	return checkWriteResponse(raw, "update", false)
}

// DeleteContract deletes a contract. An empty rule means DefaultDeleteRule.
func (c *Client) DeleteContract(ctx context.Context, id int, rule string) error {
	if rule == "" {
		rule = DefaultDeleteRule
	}
	params := url.Values{"deleteRule": {rule}}

	raw, err := c.Execute(ctx, http.MethodDelete, fmt.Sprintf("/contract/%d", id), params, nil)
	if err != nil {
		return err
	}
	// Delete must confirm success; a body without the field is a failure.
	_, err = checkWriteResponse(raw, "delete", true)
	return err
}

// checkWriteResponse verifies the success envelope on a write response.
// requireSuccess controls how a body without a success field is read:
// delete responses must report success explicitly, while create and update
// responses without the field are treated as successful. An empty body
// (204) is always a success.
func checkWriteResponse(raw json.RawMessage, op string, requireSuccess bool) (Record, error) {
	var env writeEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, &APIError{Body: string(raw), Err: fmt.Errorf("decode %s response: %w", op, err)}
		}
	}

	failed := false
	switch {
	case env.Success != nil:
		failed = !*env.Success
	case requireSuccess && len(raw) > 0:
		failed = true
	}

	if failed {
		msg := orUnknown(env.Message)
		var details []string
		for _, e := range env.Errors {
			details = append(details, e.Message)
		}
		if len(details) > 0 {
			msg += " - " + strings.Join(details, "; ")
		}
		return nil, &APIError{Body: string(raw), Err: fmt.Errorf("%s failed: %s", op, msg)}
	}

	var record Record
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, &APIError{Body: string(raw), Err: fmt.Errorf("decode %s response: %w", op, err)}
		}
	}
	return record, nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
