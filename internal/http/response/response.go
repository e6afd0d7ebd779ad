package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luissimon96/migration-validation-voe/internal/pkg/ctxutil"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the §6 error envelope. request_id is pulled from the
// trace context middleware.AttachTraceContext populates, not from the
// session's own request_id (a request can fail before a session exists).
func RespondError(c *gin.Context, status int, code string, err error) {
	RespondErrorDetails(c, status, code, err, nil)
}

func RespondErrorDetails(c *gin.Context, status int, code string, err error, details any) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	requestID := ""
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		requestID = td.RequestID
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      code,
			Details:   details,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
