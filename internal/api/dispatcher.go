package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JonMunkholm/crmwriter/internal/core"
	"github.com/JonMunkholm/crmwriter/internal/logging"
)

// Dispatcher sends record operations to the API and classifies the replies.
type Dispatcher struct {
	session *Session
}

var _ core.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(session *Session) *Dispatcher {
	return &Dispatcher{session: session}
}

// Dispatch performs one operation. Remote failures, including exhausted
// connection retries, come back as unsuccessful outcomes. Only token
// failures and cancellation are returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, op core.Operation, collection, id string, data core.Payload) (core.Outcome, error) {
	req, err := BuildRequest(op, collection, id, data)
	if err != nil {
		return core.Failure(core.LabelDataError, err.Error()), nil
	}

	resp, err := d.session.Do(ctx, req)
	if err != nil {
		var transient *TransientError
		if errors.As(err, &transient) {
			logging.FromContext(ctx).Warn("giving up on record",
				"operation", op,
				"attempts", transient.Attempts,
				"error", transient.Err,
			)
			return core.Failure(core.LabelConnectionError, err.Error()), nil
		}
		return core.Outcome{}, err
	}

	return ClassifyResponse(op, resp), nil
}

// BuildRequest maps an operation onto method, path, headers and body.
//
//	create -> POST   collection
//	update -> PATCH  collection(id)  If-Match: *
//	upsert -> PATCH  collection(id)
//	delete -> DELETE collection(id)
func BuildRequest(op core.Operation, collection, id string, data core.Payload) (*Request, error) {
	req := &Request{Path: entityPath(collection, id)}

	switch op {
	case core.OpCreate:
		req.Method = http.MethodPost
		req.Path = collection
	case core.OpUpdate:
		req.Method = http.MethodPatch
		req.Headers = map[string]string{"If-Match": "*"}
	case core.OpUpsert:
		req.Method = http.MethodPatch
	case core.OpDelete:
		req.Method = http.MethodDelete
		return req, nil
	default:
		return nil, fmt.Errorf("unsupported operation %q", op)
	}

	if data == nil {
		data = core.Payload{}
	}
	body, err := data.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding data: %w", err)
	}
	req.Body = body
	return req, nil
}

func entityPath(collection, id string) string {
	return fmt.Sprintf("%s(%s)", collection, url.PathEscape(id))
}
