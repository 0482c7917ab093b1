package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

type faultPageData struct {
	Detail string
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// FaultBoundary turns panics and fatal errors reported through
// shared.ReportFault into the generic error page. A response that has
// already started is left alone. With verbose set the page shows the error.
func FaultBoundary(templates *view.Engine, logger *slog.Logger, verbose bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := &shared.FaultSlot{}
			tw := &trackingWriter{ResponseWriter: w}
			r = r.WithContext(shared.ContextWithFaultSlot(r.Context(), slot))

			defer func() {
				rec := recover()
				if rec == nil {
					if err := slot.Err(); err != nil && !tw.wrote {
						renderFault(tw, r, templates, logger, err, verbose)
					}
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				logger.Error("panic recovered",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())))
				if !tw.wrote {
					renderFault(tw, r, templates, logger, err, verbose)
				}
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

func renderFault(w http.ResponseWriter, r *http.Request, templates *view.Engine, logger *slog.Logger, cause error, verbose bool) {
	logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", cause))

	var data faultPageData
	if verbose {
		data.Detail = cause.Error()
	}
	if templates.Has("pages/error.html") {
		err := templates.RenderStatus(w, http.StatusInternalServerError, "pages/error.html", view.TemplateData{Title: "Something went wrong", Data: data})
		if err == nil {
			return
		}
		logger.Error("render error page", slog.Any("error", errors.Join(cause, err)))
	}
	http.Error(w, "Something went wrong", http.StatusInternalServerError)
}
