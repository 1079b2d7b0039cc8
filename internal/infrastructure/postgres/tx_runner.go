package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ billing.IssuanceTxRunner = (*TxRunner)(nil)
var _ billing.DispatchTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// run inicia la transacción, ejecuta fn y hace Commit o Rollback.
func (r *TxRunner) run(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunIssuance transacción de emisión: el estado de folios queda bloqueado hasta el commit,
// de modo que un error revierte también el folio consumido.
func (r *TxRunner) RunIssuance(ctx context.Context, fn func(
	folioRepo repository.FolioRepository,
	documentRepo repository.DocumentRepository,
) error) error {
	return r.run(ctx, func(tx pgx.Tx) error {
		return fn(NewFolioRepository(tx), NewDocumentRepository(tx))
	})
}

// RunDispatch transacción de registro de un envío y marcado de sus documentos.
func (r *TxRunner) RunDispatch(ctx context.Context, fn func(
	documentRepo repository.DocumentRepository,
	shipmentRepo repository.ShipmentRepository,
) error) error {
	return r.run(ctx, func(tx pgx.Tx) error {
		return fn(NewDocumentRepository(tx), NewShipmentRepository(tx))
	})
}
