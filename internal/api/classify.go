package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

const (
	headerRequestID = "REQ_ID"
	headerEntityID  = "OData-EntityId"

	attributeHint = "Attribute you're trying to update most likely does not exist. " +
		"Please, check all attributes are published. Received: "
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Classify turns a response into a record outcome. It never fails; every
// status yields a well-formed outcome.
func Classify(op core.Operation, status int, headers http.Header, body []byte) core.Outcome {
	out := core.Outcome{CorrelationID: correlationID(headers)}

	switch status {
	case http.StatusNoContent:
		out.Success = true
		out.StatusLabel = core.RequestOK(status)
		if op == core.OpCreate {
			out.Message = headers.Get(headerEntityID)
		}
	case http.StatusNotFound, http.StatusUnauthorized:
		out.StatusLabel = core.RequestError(status)
		out.Message = errorMessage(status, body)
	case http.StatusBadRequest:
		out.StatusLabel = core.RequestError(status)
		msg, _, _ := strings.Cut(errorMessage(status, body), "\r\n")
		out.Message = attributeHint + msg
	default:
		out.StatusLabel = core.UnknownError(status)
		out.Message = string(body)
	}
	return out
}

// ClassifyResponse is Classify applied to a Response.
func ClassifyResponse(op core.Operation, resp *Response) core.Outcome {
	return Classify(op, resp.StatusCode, resp.Headers, resp.Body)
}

// correlationID returns the first comma-separated token of the request-id
// header, or "" when absent.
func correlationID(headers http.Header) string {
	v := headers.Get(headerRequestID)
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// errorMessage extracts error.message from an OData error body, falling back
// to the raw body and then the status text.
func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	if raw := strings.TrimSpace(string(body)); raw != "" {
		return raw
	}
	return http.StatusText(status)
}
