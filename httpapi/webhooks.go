package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/webhooks"
)

// handleWebhook hands the raw body to the processor untouched; signature
// verification needs the exact bytes Shopify signed.
func (s *Server) handleWebhook(c *gin.Context) {
	if s.processor == nil {
		c.JSON(http.StatusInternalServerError, webhooks.ResponseBody{Error: core.MessageInternalError})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, webhooks.ResponseBody{Error: "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, webhooks.ResponseBody{Error: "Unable to read request body"})
		return
	}
	response := s.processor.Handle(c.Request.Context(), webhooks.Delivery{
		Headers: flattenHeaders(c.Request.Header),
		Body:    body,
	})
	c.JSON(response.StatusCode, response.Body)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[http.CanonicalHeaderKey(key)] = values[0]
	}
	return out
}
