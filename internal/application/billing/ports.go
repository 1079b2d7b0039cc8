package billing

import (
	"context"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/gateway"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// IssuanceTxRunner ejecuta una función dentro de una transacción con repos de folios y documentos.
type IssuanceTxRunner interface {
	RunIssuance(ctx context.Context, fn func(
		folioRepo repository.FolioRepository,
		documentRepo repository.DocumentRepository,
	) error) error
}

// DispatchTxRunner ejecuta una función dentro de una transacción con repos de documentos y envíos.
type DispatchTxRunner interface {
	RunDispatch(ctx context.Context, fn func(
		documentRepo repository.DocumentRepository,
		shipmentRepo repository.ShipmentRepository,
	) error) error
}

// DocumentSigner timbra y firma un documento con el CAF que cubre su folio.
type DocumentSigner interface {
	Sign(doc *entity.Document, cert *entity.FolioCertificate) error
}

// DocSetBuilder arma y firma el sobre de envío.
type DocSetBuilder interface {
	Build(set *entity.DocSet) error
}

// CAFLoader interpreta un archivo CAF persistido.
type CAFLoader func(raw []byte) (*entity.FolioCertificate, error)

// DocumentParser reconstruye un documento firmado desde sus bytes.
type DocumentParser func(raw []byte) (*entity.Document, error)

// Gateway cliente del SII para una familia de envíos.
type Gateway interface {
	SetType() sii.DocSetType
	Authenticate(ctx context.Context) (*gateway.Submission, error)
	Upload(ctx context.Context, s *gateway.Submission, u gateway.Upload) (*gateway.UploadResult, error)
	PollStatus(ctx context.Context, s *gateway.Submission, senderRUT, trackID string) (*gateway.StatusResult, error)
}
