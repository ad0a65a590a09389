package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apierr "github.com/opst/ripen/pkg/api/errors"
)

// ResponseError is a non-2xx response from the server.
type ResponseError struct {
	StatusCode int

	// summary of the error, chosen by the caller
	Message string

	// what the server said
	Detail string
}

func (e *ResponseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (status code = %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status code = %d)\n%s", e.Message, e.StatusCode, e.Detail)
}

type MessageFor map[int]string

// unmarshal http response which has json content.
//
// args:
//   - resp: http response to be processed.
//   - v: value which response should be.
//   - messageFor: summary of error message for each status code.
//     If status code is not there, the name of the status code range is used.
//
// return:
//
//	*ResponseError if status code is not 2xx. Otherwise, error on reading the body.
func unmarshalJsonResponse[T any](resp *http.Response, v *T, messageFor MessageFor) error {
	scr := StatusCodeRangeOf(resp)
	if scr == Status2xx {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("unexpected response: %w (status code = %d)", err, resp.StatusCode)
		}
		return nil
	}

	message, ok := messageFor[resp.StatusCode]
	if !ok {
		message = scr.String()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ResponseError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Detail:     fmt.Sprintf("cannot read server message: %s", err),
		}
	}
	return &ResponseError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Detail:     parseErrorMessage(body),
	}
}

func parseErrorMessage(body []byte) string {
	eresp := apierr.ErrorResponse{}
	if err := json.Unmarshal(body, &eresp); err == nil && eresp.Message.Reason != "" {
		if detail, err := json.MarshalIndent(eresp.Message, "", "    "); err == nil {
			return string(detail)
		}
	}
	return string(body)
}
