package handlers

import (
	"errors"
	"mime"
	"net/http"

	apierr "github.com/opst/ripen/pkg/api/errors"
	"github.com/opst/ripen/pkg/domain"
)

func requireJSON(req *http.Request) error {
	ctyp, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || ctyp != "application/json" {
		return apierr.BadRequest("unexpected content type. it should be application/json", err)
	}
	return nil
}

func schemaViolation(err error) error {
	advice := "fix malformed rows and send the whole batch again."
	sve := new(domain.SchemaViolationError)
	if errors.As(err, &sve) {
		advice = sve.Error()
	}
	return apierr.BadRequest(advice, err)
}
