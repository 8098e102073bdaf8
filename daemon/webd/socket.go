package webd

import (
	"encoding/json"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/olahol/melody"
	"github.com/paulmach/orb/geojson"
)

type websocketAction string

const (
	websocketActionLast     websocketAction = "last"
	websocketActionEstimate websocketAction = "estimate"
)

type broadcast struct {
	Action   websocketAction    `json:"action"`
	Features []*geojson.Feature `json:"features"`
}

func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()

	// New clients get the last known estimates first.
	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		s.logger.Debug("Websocket connected", "remote", sess.Request.RemoteAddr)
		bc := broadcast{Action: websocketActionLast}
		for _, e := range s.lastKnown.All() {
			bc.Features = append(bc.Features, e.Feature())
		}
		b, _ := json.Marshal(bc)
		_ = sess.Write(b)
	})

	// Clients have nothing to say.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		s.logger.Debug("Websocket message", "remote", sess.Request.RemoteAddr, "msg", string(msg))
	})

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		s.logger.Debug("Websocket disconnected", "remote", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, err error) {
		s.logger.Warn("Websocket error", "remote", sess.Request.RemoteAddr, "error", err)
	})
}

func (s *WebDaemon) broadcast(e fix.Estimate) {
	if s.melodyInstance == nil || s.melodyInstance.Len() == 0 {
		return
	}
	b, err := json.Marshal(broadcast{
		Action:   websocketActionEstimate,
		Features: []*geojson.Feature{e.Feature()},
	})
	if err != nil {
		s.logger.Error("Failed to marshal estimate", "error", err)
		return
	}
	if err := s.melodyInstance.Broadcast(b); err != nil {
		s.logger.Warn("Failed to broadcast estimate", "error", err)
	}
}
