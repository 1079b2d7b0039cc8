//go:debug rsa1024min=0

// sii_sync envía los documentos firmados pendientes y actualiza el estado de los
// envíos abiertos ante el SII. Pensado para ejecutarse periódicamente (cron).
//
// Uso: go run ./cmd/sii_sync [-dispatch] [-status=false]
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/metrics"
	"github.com/jhoicas/dte-sii/internal/infrastructure/postgres"
	siiinfra "github.com/jhoicas/dte-sii/internal/infrastructure/sii"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/gateway"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/pkg/config"
	"github.com/jhoicas/dte-sii/pkg/logger"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	dispatch := flag.Bool("dispatch", false, "enviar documentos firmados pendientes antes de consultar estados")
	status := flag.Bool("status", true, "consultar el estado de los envíos pendientes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.Level,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("sii", cfg.SII.Environment).
		Str("issuer", cfg.SII.IssuerRUT).
		Msg("iniciando sincronización SII")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := func() (tls.Certificate, error) {
		if cfg.SII.CertKeyPath != "" {
			return signer.LoadFromPEM(cfg.SII.CertPath, cfg.SII.CertKeyPath)
		}
		return signer.Load(cfg.SII.CertPath, cfg.SII.CertPassword)
	}
	cert, err := load()
	if err != nil {
		log.Fatal().Err(err).Msg("certificado del emisor")
	}
	envelope, err := signer.NewEnvelopeService(cert)
	if err != nil {
		log.Fatal().Err(err).Msg("firmador de sobres")
	}

	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	var gateways []billing.Gateway
	for _, setType := range []sii.DocSetType{sii.DocSetETD, sii.DocSetVoucher} {
		proto, err := gateway.NewProtocol(setType, cfg.SII.Environment)
		if err != nil {
			log.Fatal().Err(err).Msg("protocolo SII")
		}
		gateways = append(gateways, gateway.NewClient(proto, envelope, cfg.SII.HTTPTimeout()).
			WithLogger(log.Component("gateway").Zerolog()).
			WithMetrics(m))
	}

	cover := entity.Cover{
		IssuerRUT:      cfg.SII.IssuerRUT,
		SenderRUT:      cfg.SII.SenderRUT,
		ReceptorRUT:    sii.ReceptorRUT,
		ResolutionDate: cfg.SII.ResolutionDate,
		ResolutionNum:  cfg.SII.ResolutionNumber,
	}
	dispatchSvc := billing.NewDispatchService(
		postgres.NewTxRunner(pool),
		postgres.NewDocumentRepository(pool),
		postgres.NewShipmentRepository(pool),
		siiinfra.NewDocSetBuilder(envelope),
		siiinfra.NewFolioUsageBuilder(envelope),
		siiinfra.ParseDTE,
		gateways,
		cover,
		log,
		m,
	)

	exit := 0
	if *dispatch {
		for _, g := range gateways {
			sh, err := dispatchSvc.Dispatch(ctx, g.SetType())
			if err != nil {
				log.Error().Err(err).Str("set_type", string(g.SetType())).Msg("envío")
				exit = 1
				continue
			}
			if sh == nil {
				log.Info().Str("set_type", string(g.SetType())).Msg("sin documentos pendientes")
			}
		}
	}
	if *status {
		n, err := dispatchSvc.RefreshStatus(ctx)
		if err != nil {
			log.Error().Err(err).Msg("consulta de estados")
			exit = 1
		}
		log.Info().Int("updated", n).Msg("estados actualizados")
	}
	stop()
	pool.Close()

	if cfg.SII.MetricsPushURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.SII.MetricsPushURL, "sii_sync", reg); err != nil {
			log.Warn().Err(err).Msg("métricas")
		}
		cancel()
	}
	os.Exit(exit)
}
