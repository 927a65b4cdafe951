package web

import (
	"net/http"
	"testing"

	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := map[toolerr.Kind]int{
		toolerr.KindInvalidArguments:   http.StatusBadRequest,
		toolerr.KindInvalidOptions:     http.StatusBadRequest,
		toolerr.KindNotFound:           http.StatusNotFound,
		toolerr.KindRepositoryNotFound: http.StatusNotFound,
		toolerr.KindNotARepository:     http.StatusNotFound,
		toolerr.KindAlreadyExists:      http.StatusConflict,
		toolerr.KindConflict:           http.StatusConflict,
		toolerr.KindFailedPrecondition: http.StatusConflict,
		toolerr.KindLocked:             http.StatusLocked,
		toolerr.KindCancelled:          StatusClientClosedRequest,
		toolerr.KindIO:                 http.StatusInternalServerError,
		toolerr.KindEngine:             http.StatusInternalServerError,
	}

	for kind, status := range tests {
		assert.Equal(t, status, StatusFor(kind), kind.String())
	}
}
