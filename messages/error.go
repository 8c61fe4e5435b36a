// Package messages implements the SCIM protocol message envelopes per
// RFC 7644 3: patch requests, list responses, search requests, and error
// responses.
package messages

import (
	"net/http"
	"strconv"

	"github.com/openidx/scimcore/scim"
)

// ErrorURN is the message schema identifier for error responses
const ErrorURN = "urn:ietf:params:scim:api:messages:2.0:Error"

// ErrorMessage is the SCIM error response body (RFC 7644 3.12). The status
// is serialized as a string per the message schema.
type ErrorMessage struct {
	Schemas  []string `json:"schemas"`
	Status   string   `json:"status"`
	ScimType string   `json:"scimType,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// NewErrorMessage renders any error as an error response. Protocol errors
// keep their status and scimType; everything else is a 500.
func NewErrorMessage(err error) ErrorMessage {
	msg := ErrorMessage{
		Schemas: []string{ErrorURN},
		Status:  strconv.Itoa(http.StatusInternalServerError),
	}
	if err == nil {
		return msg
	}
	if e, ok := err.(*scim.Error); ok {
		msg.Status = strconv.Itoa(e.Status)
		msg.ScimType = e.ScimType
		msg.Detail = e.Detail
		return msg
	}
	msg.Detail = err.Error()
	return msg
}

// StatusCode returns the numeric HTTP status of the message
func (m ErrorMessage) StatusCode() int {
	status, err := strconv.Atoi(m.Status)
	if err != nil {
		return http.StatusInternalServerError
	}
	return status
}
