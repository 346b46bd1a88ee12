package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	"github.com/nirmal141/nvidiaxdell-hack/api/validators"
	"github.com/nirmal141/nvidiaxdell-hack/internal/ingest"
	"github.com/nirmal141/nvidiaxdell-hack/internal/jobs"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/config"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

// upgrader allows any origin; the progress stream carries no credentials and
// browser clients connect from the separately-hosted frontend.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressStream upgrades to a websocket and forwards job events for one
// video until the job reaches a terminal state or the client goes away. When
// no job is live it sends the current status snapshot and closes.
func ProgressStream(svc ingest.Service, registry *jobs.Registry, cfg config.ProgressConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "videoId"), "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Status(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, cancel := registry.Subscribe(id)
		defer cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure
			if logg != nil {
				logg.Warn(r.Context(), "websocket upgrade failed: "+err.Error())
			}
			return
		}
		defer conn.Close()

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithVideoID(ctx, id.String())
		}

		writeTimeout := cfg.WriteTimeout
		if writeTimeout <= 0 {
			writeTimeout = 5 * time.Second
		}
		pingInterval := cfg.PingInterval
		if pingInterval <= 0 {
			pingInterval = 10 * time.Second
		}

		// drain client frames so pings/pongs and close frames are processed
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		writeJSON := func(payload any) bool {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				if logg != nil {
					logg.Debug(ctx, "progress write failed: "+err.Error())
				}
				return false
			}
			return true
		}

		if snapshot.Job == nil {
			// no live job: report where the video ended up and close
			writeJSON(snapshot)
			closeNormally(conn, writeTimeout)
			return
		}

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					closeNormally(conn, writeTimeout)
					return
				}
				if !writeJSON(event) {
					return
				}
				if event.State.IsTerminal() {
					closeNormally(conn, writeTimeout)
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-clientGone:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func closeNormally(conn *websocket.Conn, timeout time.Duration) {
	conn.SetWriteDeadline(time.Now().Add(timeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}
