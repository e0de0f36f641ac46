package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/logiride/client/internal/domain/chat"
	"github.com/logiride/client/internal/domain/ledger"
)

func (s *Server) balanceHistory(c *gin.Context) {
	owner := c.Param("accountId")
	if owner != accountID(c) {
		fail(c, http.StatusForbidden, "You can only view your own balance history")
		return
	}
	rows, err := s.store.Accounts.History(c.Request.Context(), owner)
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	success(c, out)
}

func (s *Server) chatHistory(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := s.partyBooking(ctx, c.Param("bookingId"), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	rows, err := s.store.Content.Messages(ctx, b.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]chat.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	success(c, out)
}
