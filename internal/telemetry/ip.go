package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// IPServerSide — маркер в метаданных сессии, когда внешний сервис не ответил:
// адрес остается определять коллектору по самому соединению.
const IPServerSide = "server_side"

// LookupPublicIP спрашивает публичный IP у внешнего сервиса (формат ipify:
// {"ip": "..."}). Ошибка не фатальна для сессии, поэтому наружу всегда
// уходит строка: либо адрес, либо маркер IPServerSide.
func LookupPublicIP(ctx context.Context, hc *http.Client, lookupURL string, logger *zap.Logger) string {
	if hc == nil {
		hc = &http.Client{}
	}

	var ip string

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
	)

	err := r.Do(func() error {
		tCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(tCtx, http.MethodGet, lookupURL, nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ip lookup: status %d", resp.StatusCode)
		}

		var payload struct {
			IP string `json:"ip"`
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("ip lookup: bad payload: %w", err)
		}
		if payload.IP == "" {
			return fmt.Errorf("ip lookup: empty ip in payload")
		}
		ip = payload.IP
		return nil
	})

	if err != nil {
		logger.Warn("public ip lookup failed", zap.Error(err))
		return IPServerSide
	}
	return ip
}
