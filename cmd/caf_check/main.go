//go:debug rsa1024min=0

// caf_check diagnostica el certificado del emisor y los archivos CAF configurados.
// Con -register además guarda los CAF en la base de datos e inicializa sus folios.
//
// Uso: go run ./cmd/caf_check [-register] [directorio CAF]
// Por defecto usa SII_CAF_DIR.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/postgres"
	siiinfra "github.com/jhoicas/dte-sii/internal/infrastructure/sii"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/pkg/config"
	"github.com/jhoicas/dte-sii/pkg/logger"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

func main() {
	register := flag.Bool("register", false, "registrar los CAF en la base de datos")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(1)
	}
	cafDir := cfg.SII.CAFDir
	if flag.NArg() > 0 {
		cafDir = flag.Arg(0)
	}

	fmt.Println("DIAGNÓSTICO DE CERTIFICADO Y CAF (SII)")
	fmt.Println("--------------------------------------")

	cert, ok := checkCertificate(cfg.SII)
	certs, ok2 := checkCAFs(cafDir, cfg.SII.IssuerRUT)
	if !ok || !ok2 {
		os.Exit(1)
	}
	if !*register {
		return
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.Level, Service: cfg.App.Name})
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	issuer := entity.Issuer{
		RUT:            cfg.SII.IssuerRUT,
		ResolutionNum:  cfg.SII.ResolutionNumber,
		ResolutionDate: cfg.SII.ResolutionDate,
	}
	issueSvc := billing.NewIssueService(
		postgres.NewTxRunner(pool), nil, siiinfra.LoadCAF, siiinfra.ParseDTE,
		issuer, cert, cfg.SII.SignWorkers, log, nil,
	)
	failed := false
	for _, c := range certs {
		_, err := issueSvc.RegisterCAF(ctx, c.Raw())
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			fmt.Printf("   tipo %d [%d-%d] ya registrado\n", int(c.DocType()), c.RangeFrom(), c.RangeTo())
		case err != nil:
			fmt.Printf("   tipo %d [%d-%d] ERROR: %v\n", int(c.DocType()), c.RangeFrom(), c.RangeTo(), err)
			failed = true
		default:
			fmt.Printf("   tipo %d [%d-%d] registrado\n", int(c.DocType()), c.RangeFrom(), c.RangeTo())
		}
	}
	if failed {
		os.Exit(1)
	}
}

func checkCertificate(cfg config.SIIConfig) (*entity.IssuerCertificate, bool) {
	fmt.Printf("\nCertificado: %s\n", cfg.CertPath)
	var (
		cert tls.Certificate
		err  error
	)
	if cfg.CertKeyPath != "" {
		cert, err = signer.LoadFromPEM(cfg.CertPath, cfg.CertKeyPath)
	} else {
		cert, err = signer.Load(cfg.CertPath, cfg.CertPassword)
	}
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		if errors.Is(err, domain.ErrKeyImport) {
			fmt.Println("   El archivo existe pero la contraseña o el formato no son válidos.")
		}
		return nil, false
	}
	if _, err := signer.NewEnvelopeService(cert); err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return nil, false
	}
	info, err := signer.CertificateInfo(cert)
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return nil, false
	}
	_ = info.Activate()
	fmt.Printf("   Sujeto: %s\n   Serie:  %s\n   Vigencia: %s a %s\n",
		info.Subject, info.Serial, info.ValidFrom.Format(time.DateOnly), info.ValidTo.Format(time.DateOnly))
	if !info.UsableAt(time.Now()) {
		fmt.Println("   ERROR: el certificado no está vigente")
		return nil, false
	}
	fmt.Println("   OK")
	return &info, true
}

// checkCAFs carga los CAF y verifica emisor, llaves y que los rangos de cada tipo no se repitan.
func checkCAFs(dir, issuerRUT string) ([]*entity.FolioCertificate, bool) {
	fmt.Printf("\nCAF en: %s\n", dir)
	certs, err := siiinfra.LoadCAFDir(dir)
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return nil, false
	}
	if len(certs) == 0 {
		fmt.Println("   ERROR: no hay archivos *.xml")
		return nil, false
	}
	ok := true
	authorities := make(map[sii.DocumentType]*dte.FolioAuthority)
	for _, c := range certs {
		a, found := authorities[c.DocType()]
		if !found {
			a = dte.NewFolioAuthority(c.DocType())
			authorities[c.DocType()] = a
		}
		status := "OK"
		if c.IssuerRUT() != issuerRUT {
			status = fmt.Sprintf("ERROR: emitido a %s (SII_ISSUER_RUT=%s)", c.IssuerRUT(), issuerRUT)
			ok = false
		} else if err := a.InsertCertificate(c); err != nil {
			status = "ERROR: " + err.Error()
			ok = false
		}
		fmt.Printf("   tipo %-3d %-28s folios %d-%d  %s\n", int(c.DocType()), c.DocType(), c.RangeFrom(), c.RangeTo(), status)
	}
	for docType, a := range authorities {
		from, to := a.Range()
		fmt.Printf("   tipo %d: rango total %d-%d, %d folios disponibles\n", int(docType), from, to, a.FoliosLeft())
	}
	return certs, ok
}
