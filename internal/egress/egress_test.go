package egress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"TradeFloor/internal/domain/models"
	"TradeFloor/pkg/logger"
)

func TestLogPublisherAcceptsSignal(t *testing.T) {
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	p := NewLogPublisher(lgr)
	sig := &models.ExecutionSignal{
		ApprovedSignal: models.ApprovedSignal{
			ValidatedSignal: models.ValidatedSignal{
				RawSignal: models.RawSignal{Ticker: "NVDA", Action: models.ActionBuy},
			},
		},
		DirectorApproved: true,
		PositionSize:     2500,
	}

	require.NoError(t, p.PublishExecution(context.Background(), sig))
	require.NoError(t, p.Close())
}
