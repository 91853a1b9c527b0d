package marketdata

import (
	"context"
	"errors"

	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/models"
	"go.uber.org/zap"
)

// MultiClient tries several clients in order and returns the first success.
type MultiClient struct {
	clients []Client
}

// NewMultiClient creates a MultiClient; nil clients are skipped.
func NewMultiClient(clients ...Client) *MultiClient {
	m := &MultiClient{}
	for _, c := range clients {
		if c != nil {
			m.clients = append(m.clients, c)
		}
	}
	return m
}

// FetchQuotes implements Client. When every client fails the last error is returned.
func (m *MultiClient) FetchQuotes(ctx context.Context) ([]models.MarketQuote, error) {
	if len(m.clients) == 0 {
		return nil, errors.New("no market data clients configured")
	}
	var lastErr error
	for i, c := range m.clients {
		quotes, err := c.FetchQuotes(ctx)
		if err == nil {
			return quotes, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(m.clients)-1 {
			logger.Log.Debug("market data source failed, trying next", zap.Int("source", i), zap.Error(err))
		}
	}
	return nil, lastErr
}
