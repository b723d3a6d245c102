package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/fabricmgmt/eventing-backend/pkg/errors"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

type successEnvelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successEnvelope{Data: data})
}

func writeError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict,
		pkgerrors.CodeDuplicate:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := errorEnvelope{
		Error: apiError{
			Code:    string(typed.Code()),
			Message: msg,
		},
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		logg.Error(logg.WithField(ctx, "error_dump", pkgerrors.Dump(err)), "request failed", err)
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to write response","err":"%v"}`, err)
	}
}
