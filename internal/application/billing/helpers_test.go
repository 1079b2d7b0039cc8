package billing_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/internal/infrastructure/metrics"
	siiinfra "github.com/jhoicas/dte-sii/internal/infrastructure/sii"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/gateway"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/internal/testutil"
	"github.com/jhoicas/dte-sii/pkg/logger"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const issuerRUT = "76086428-5"

var now = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

func issuer() entity.Issuer {
	return entity.Issuer{
		RUT:            issuerRUT,
		LegalName:      "Servicios Sanitarios Ltda",
		Activity:       "captación y distribución de agua",
		ActivityCodes:  []int{360000},
		Address:        entity.Address{Street: "Av. Principal 123", Comuna: "Santiago", City: "Santiago"},
		ResolutionNum:  80,
		ResolutionDate: "2014-08-22",
	}
}

func receptor() entity.Receptor {
	return entity.Receptor{
		RUT:       "12345678-5",
		LegalName: "Juan Pérez",
		Activity:  "particular",
		Address:   entity.Address{Street: "Calle Uno 1", Comuna: "Ñuñoa", City: "Santiago"},
	}
}

func cover() entity.Cover {
	return entity.Cover{
		IssuerRUT:      issuerRUT,
		SenderRUT:      "12345678-5",
		ReceptorRUT:    "60803000-K",
		ResolutionDate: "2014-08-22",
		ResolutionNum:  80,
	}
}

func activeCert() *entity.IssuerCertificate {
	return &entity.IssuerCertificate{
		Serial:    "20260101",
		Subject:   "EMPRESA DE PRUEBA SPA",
		ValidFrom: now.AddDate(-1, 0, 0),
		ValidTo:   now.AddDate(1, 0, 0),
		Status:    entity.IssuerCertActive,
	}
}

func charge(id string, amount int64) entity.Charge {
	return entity.Charge{
		ID:        id,
		Amount:    amount,
		Service:   "Consumo agua potable",
		ExpiresAt: now.AddDate(0, 0, 20),
		Status:    entity.ChargeStatusPending,
	}
}

func request(id string, amount int64, docType sii.DocumentType) billing.IssueRequest {
	return billing.IssueRequest{Charge: charge(id, amount), Receptor: receptor(), DocType: docType}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "production", Level: "error", Output: io.Discard})
}

func envelope(t *testing.T) *signer.EnvelopeService {
	t.Helper()
	svc, err := signer.NewEnvelopeService(testutil.Certificate(t))
	require.NoError(t, err)
	return svc
}

func documentSigner(t *testing.T) *siiinfra.DocumentSigner {
	t.Helper()
	return siiinfra.NewDocumentSigner(envelope(t)).WithClock(clock)
}

type fixture struct {
	store   *memStore
	metrics *metrics.Metrics
	issue   *billing.IssueService
}

// newFixture servicio de emisión con almacenamiento en memoria y CAF de 1 a 10
// para cada tipo indicado.
func newFixture(t *testing.T, sign billing.DocumentSigner, types ...sii.DocumentType) *fixture {
	t.Helper()
	store := newMemStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := billing.NewIssueService(
		&memTx{store: store}, sign, siiinfra.LoadCAF, siiinfra.ParseDTE,
		issuer(), activeCert(), 4, testLogger(), m,
	).WithClock(clock)
	for _, dt := range types {
		_, err := svc.RegisterCAF(context.Background(), testutil.CAF(t, int(dt), 1, 10, issuerRUT))
		require.NoError(t, err)
	}
	return &fixture{store: store, metrics: m, issue: svc}
}

// failingSigner falla al firmar el folio indicado.
type failingSigner struct {
	inner billing.DocumentSigner
	folio int64
}

func (s failingSigner) Sign(doc *entity.Document, cert *entity.FolioCertificate) error {
	if doc.Folio() == s.folio {
		return fmt.Errorf("%w: folio %d", domain.ErrSignature, doc.Folio())
	}
	return s.inner.Sign(doc, cert)
}

// =============================================================================
// Persistencia en memoria
// =============================================================================

type memStore struct {
	mu        sync.Mutex
	states    map[sii.DocumentType]dte.FolioState
	cafs      map[sii.DocumentType][][]byte
	documents []*entity.DocumentRecord
	shipments []*entity.ShipmentRecord
}

func newMemStore() *memStore {
	return &memStore{
		states: make(map[sii.DocumentType]dte.FolioState),
		cafs:   make(map[sii.DocumentType][][]byte),
	}
}

type snapshot struct {
	states    map[sii.DocumentType]dte.FolioState
	cafs      map[sii.DocumentType][][]byte
	documents []entity.DocumentRecord
	shipments []entity.ShipmentRecord
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		states: make(map[sii.DocumentType]dte.FolioState, len(s.states)),
		cafs:   make(map[sii.DocumentType][][]byte, len(s.cafs)),
	}
	for k, v := range s.states {
		v.Returned = append([]int64(nil), v.Returned...)
		snap.states[k] = v
	}
	for k, v := range s.cafs {
		snap.cafs[k] = append([][]byte(nil), v...)
	}
	for _, d := range s.documents {
		snap.documents = append(snap.documents, *d)
	}
	for _, sh := range s.shipments {
		snap.shipments = append(snap.shipments, *sh)
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = snap.states
	s.cafs = snap.cafs
	s.documents = nil
	for i := range snap.documents {
		s.documents = append(s.documents, &snap.documents[i])
	}
	s.shipments = nil
	for i := range snap.shipments {
		s.shipments = append(s.shipments, &snap.shipments[i])
	}
}

func (s *memStore) docs() []*entity.DocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.DocumentRecord(nil), s.documents...)
}

func (s *memStore) state(docType sii.DocumentType) dte.FolioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[docType]
}

// memTx serializa las transacciones y descarta sus cambios si fn falla.
type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (tx *memTx) RunIssuance(ctx context.Context, fn func(repository.FolioRepository, repository.DocumentRepository) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	snap := tx.store.snapshot()
	if err := fn(&memFolios{tx.store}, &memDocuments{tx.store}); err != nil {
		tx.store.restore(snap)
		return err
	}
	return nil
}

func (tx *memTx) RunDispatch(ctx context.Context, fn func(repository.DocumentRepository, repository.ShipmentRepository) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	snap := tx.store.snapshot()
	if err := fn(&memDocuments{tx.store}, &memShipments{tx.store}); err != nil {
		tx.store.restore(snap)
		return err
	}
	return nil
}

type memFolios struct{ s *memStore }

func (r *memFolios) GetForUpdate(_ context.Context, _ string, docType sii.DocumentType) (*dte.FolioState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.states[docType]
	if !ok {
		return nil, nil
	}
	st.Returned = append([]int64(nil), st.Returned...)
	return &st, nil
}

func (r *memFolios) Save(_ context.Context, _ string, state dte.FolioState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.states[state.DocType] = state
	return nil
}

func (r *memFolios) SaveCertificate(_ context.Context, cert *entity.FolioCertificate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, raw := range r.s.cafs[cert.DocType()] {
		if bytes.Equal(raw, cert.Raw()) {
			return domain.ErrDuplicate
		}
	}
	r.s.cafs[cert.DocType()] = append(r.s.cafs[cert.DocType()], cert.Raw())
	return nil
}

func (r *memFolios) ListCertificates(_ context.Context, _ string, docType sii.DocumentType) ([][]byte, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([][]byte(nil), r.s.cafs[docType]...), nil
}

type memDocuments struct{ s *memStore }

func (r *memDocuments) Create(_ context.Context, rec *entity.DocumentRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.documents {
		if d.DocType == rec.DocType && d.Folio == rec.Folio {
			return domain.ErrDuplicate
		}
	}
	r.s.documents = append(r.s.documents, rec)
	return nil
}

func (r *memDocuments) GetByFolio(_ context.Context, _ string, docType sii.DocumentType, folio int64) (*entity.DocumentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.documents {
		if d.DocType == docType && d.Folio == folio {
			return d, nil
		}
	}
	return nil, nil
}

func (r *memDocuments) ListSigned(_ context.Context, _ string, setType sii.DocSetType, limit int) ([]*entity.DocumentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.DocumentRecord
	for _, d := range r.s.documents {
		if d.Status == entity.DocumentStatusSigned && d.DocType.SetType() == setType && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memDocuments) ListIssued(_ context.Context, _ string, docType sii.DocumentType, from, to time.Time) ([]*entity.DocumentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.DocumentRecord
	for _, d := range r.s.documents {
		if d.DocType == docType && !d.DateEmitted.Before(from) && d.DateEmitted.Before(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folio < out[j].Folio })
	return out, nil
}

func (r *memDocuments) MarkSent(_ context.Context, ids []string, shipmentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		found := false
		for _, d := range r.s.documents {
			if d.ID == id && d.Status == entity.DocumentStatusSigned {
				d.Status = entity.DocumentStatusSent
				d.ShipmentID = shipmentID
				found = true
			}
		}
		if !found {
			return domain.ErrConflict
		}
	}
	return nil
}

type memShipments struct{ s *memStore }

func (r *memShipments) Create(_ context.Context, sh *entity.ShipmentRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *sh
	r.s.shipments = append(r.s.shipments, &cp)
	return nil
}

func (r *memShipments) GetByID(_ context.Context, id string) (*entity.ShipmentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sh := range r.s.shipments {
		if sh.ID == id {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memShipments) UpdateStatus(_ context.Context, sh *entity.ShipmentRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, cur := range r.s.shipments {
		if cur.ID == sh.ID {
			cp := *sh
			r.s.shipments[i] = &cp
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memShipments) ListPending(_ context.Context, _ string, limit int) ([]*entity.ShipmentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ShipmentRecord
	for _, sh := range r.s.shipments {
		if sh.Status == entity.ShipmentStatusPending && len(out) < limit {
			cp := *sh
			out = append(out, &cp)
		}
	}
	return out, nil
}

// =============================================================================
// Cliente SII falso
// =============================================================================

type fakeGateway struct {
	setType   sii.DocSetType
	authErr   error
	uploadErr error
	status    gateway.StatusResult
	uploads   []gateway.Upload
	polled    []string
	auths     int
}

func (g *fakeGateway) SetType() sii.DocSetType { return g.setType }

func (g *fakeGateway) Authenticate(context.Context) (*gateway.Submission, error) {
	g.auths++
	if g.authErr != nil {
		return nil, g.authErr
	}
	return &gateway.Submission{State: gateway.StateTokenObtained, Token: "TOKEN-1"}, nil
}

func (g *fakeGateway) Upload(_ context.Context, s *gateway.Submission, u gateway.Upload) (*gateway.UploadResult, error) {
	if g.uploadErr != nil {
		return nil, g.uploadErr
	}
	g.uploads = append(g.uploads, u)
	s.State = gateway.StateUploaded
	return &gateway.UploadResult{TrackID: "4242", StatusCode: "REC", Raw: []byte("<RECEPCIONDTE/>")}, nil
}

func (g *fakeGateway) PollStatus(_ context.Context, _ *gateway.Submission, senderRUT, trackID string) (*gateway.StatusResult, error) {
	g.polled = append(g.polled, senderRUT+"/"+trackID)
	st := g.status
	return &st, nil
}
