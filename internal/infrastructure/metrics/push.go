package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push envía lo recolectado por g a un Pushgateway bajo el job indicado.
// Los procesos de corta vida (cron) no viven lo suficiente para ser scrapeados.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push métricas a %s: %w", url, err)
	}
	return nil
}
