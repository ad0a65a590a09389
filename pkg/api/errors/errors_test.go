package errors_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	apierr "github.com/opst/ripen/pkg/api/errors"
)

func TestNewErrorMessage(t *testing.T) {
	cause := errors.New("fake error")
	herr := apierr.NewErrorMessage(
		http.StatusConflict, "conflict",
		apierr.WithAdvice("retry later."),
		apierr.WithError(cause),
	)

	if herr.Code != http.StatusConflict {
		t.Errorf("unexpected code: %d", herr.Code)
	}
	if !errors.Is(herr.Internal, cause) {
		t.Errorf("internal error does not wrap cause: %v", herr.Internal)
	}

	body, err := json.Marshal(apierr.ErrorResponse{Message: herr.Message.(apierr.ErrorMessage)})
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"message":{"reason":"conflict","advice":"retry later."}}`
	if string(body) != expected {
		t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, body)
	}
}

func TestErrorMessage_UnmarshalJSON(t *testing.T) {
	t.Run("it unmarshals reason and advice", func(t *testing.T) {
		var msg apierr.ErrorMessage
		if err := json.Unmarshal([]byte(`{"reason":"bad request","advice":"fix it."}`), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Reason != "bad request" || msg.Advice != "fix it." {
			t.Errorf("unexpected message: %+v", msg)
		}
	})

	t.Run("it requires reason", func(t *testing.T) {
		var msg apierr.ErrorMessage
		if err := json.Unmarshal([]byte(`{"advice":"fix it."}`), &msg); err == nil {
			t.Errorf("expected error, but not: %+v", msg)
		}
	})
}
