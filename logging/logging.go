package logging

import (
	"io"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"k8s.io/klog/v2"
)

func Setup(w io.Writer) {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000"
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	// client-go logs through klog: send it to the same stream
	klogger := log.Logger.With().Str("source", "client-go").Logger()
	klog.SetLogger(zerologr.New(&klogger))
}
