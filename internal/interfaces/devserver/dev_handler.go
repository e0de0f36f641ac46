package devserver

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

type notifyRequest struct {
	AccountID string          `json:"accountId" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// notify pushes payload as a NOTIFICATION to the account room. The payload
// is forwarded untouched so clients can be fed malformed offers.
func (s *Server) notify(c *gin.Context) {
	var req notifyRequest
	if !bind(c, &req) {
		return
	}
	content, err := json.Marshal(string(req.Payload))
	if err != nil {
		handleError(c, err)
		return
	}
	n := s.hub.Publish(req.AccountID, realtime.Envelope{
		Type:    realtime.EventNotification,
		Content: content,
	})
	logger.GetGinLogger(c, s.logger).Info("Notification pushed",
		zap.String("account_id", req.AccountID),
		zap.Int("delivered", n),
	)
	success(c, gin.H{"delivered": n})
}
