// Package httpx provides HTTP response helpers shared by cardlink services.
// It standardizes JSON responses and error envelopes across handlers.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// SendJsonRsp sends a JSON response with the given status code and message.
// Handles both pre-marshaled JSON and structs.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, msg any) {
	var msgJson []byte
	switch v := msg.(type) {
	case []byte:
		if json.Valid(v) {
			msgJson = v
		}
	case string:
		b := []byte(v)
		if json.Valid(b) {
			msgJson = b
		}
	default:
		var err error
		msgJson, err = json.Marshal(msg)
		if err != nil {
			log.Ctx(ctx).Err(err).Msg("unable to marshal json")
			ErrApplicationError().Send(w)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(msgJson)
}
