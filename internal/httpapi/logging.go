package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logGenerateStart(r *http.Request, model string) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("model", model)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("generate start")
		return
	}
	log.Printf("generate start path=%s model=%s", r.URL.Path, model)
}

func logGenerateEnd(r *http.Request, status int, dur time.Duration, err error) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Int("status", status).Dur("dur", dur)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("generate end")
		return
	}
	log.Printf("generate end path=%s status=%d dur=%s err=%v", r.URL.Path, status, dur, err)
}

func logEncodeFailure(err error) {
	if zlog != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
		return
	}
	log.Printf("failed to encode response: %v", err)
}
