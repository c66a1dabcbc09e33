package response

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/curaious/xm/internal/perrors"
)

// Response is the JSON envelope every API route writes.
type Response[T any] struct {
	ctx          context.Context
	Error        bool         `json:"error"`
	Message      string       `json:"message"`
	Data         T            `json:"data"`
	ErrorDetails *perrors.Err `json:"errorDetails,omitempty"`
	Status       int          `json:"status"`
}

func NewResponse[T any](ctx context.Context, msg string, data T) *Response[T] {
	return &Response[T]{
		ctx:     ctx,
		Message: msg,
		Data:    data,
		Status:  http.StatusOK,
	}
}

// WithError turns the response into an error envelope. Errors that are not a
// perrors.Err become internal server errors. The error is logged here once.
func (r *Response[T]) WithError(err error) *Response[T] {
	var perr perrors.Err
	if !errors.As(err, &perr) {
		perr = perrors.NewErrInternalServerError(r.Message, err).(perrors.Err)
	}
	perr.Print(r.ctx)

	if perr.HttpStatus() >= http.StatusInternalServerError {
		trace.SpanFromContext(r.ctx).SetStatus(codes.Error, perr.Error())
	}

	r.Error = true
	r.Status = perr.HttpStatus()
	r.ErrorDetails = &perr

	return r
}

// Write encodes the envelope as the body of ctx with the envelope's status.
func (r *Response[T]) Write(ctx *fasthttp.RequestCtx) {
	body, err := json.Marshal(r)
	if err != nil {
		slog.ErrorContext(r.ctx, "Unable to encode response", slog.Any("error", err))
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(r.Status)
	ctx.SetBody(body)
}
