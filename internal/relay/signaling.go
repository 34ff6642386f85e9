package relay

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"teamsync-backend/internal/metrics"
)

// Signaling offer / answer / ice-candidate 를 대상 연결 하나에만 전달
type Signaling struct {
	conns *ConnTable
	log   zerolog.Logger
}

// NewSignaling Signaling 생성
func NewSignaling(conns *ConnTable, log zerolog.Logger) *Signaling {
	return &Signaling{conns: conns, log: log}
}

// Relay 대상이 살아 있으면 from 을 붙여 전달. 없는 대상은 조용히 버린다.
func (s *Signaling) Relay(kind Kind, payload json.RawMessage, from, to string) bool {
	target, ok := s.conns.Get(to)
	if !ok {
		metrics.RelayDropped.WithLabelValues(metrics.DropNoTarget).Inc()
		s.log.Debug().Str("kind", string(kind)).Str("from", from).Str("to", to).Msg("signal target not connected")
		return false
	}
	return target.Send(newSignalForward(kind, payload, from))
}
